package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// adder has inputs a and b and an output sum affected by both.
type adder struct{}

func (adder) TypeName() string { return "Adder" }

func (adder) Affects(input *Plug) []*Plug {
	if input.Direction() != In || (input.Name() != "a" && input.Name() != "b") {
		return nil
	}
	if sum := input.Node().Plug("sum"); sum != nil {
		return []*Plug{sum}
	}
	return nil
}

// plain has no capabilities.
type plain struct{}

func (plain) TypeName() string { return "Plain" }

// compoundAffector reports a compound plug, which is a bug.
type compoundAffector struct{}

func (compoundAffector) TypeName() string { return "Broken" }

func (compoundAffector) Affects(input *Plug) []*Plug {
	if input.Direction() != In {
		return nil
	}
	if group := input.Node().Plug("group"); group != nil {
		return []*Plug{group}
	}
	return nil
}

// picky refuses inputs named "forbidden".
type picky struct{}

func (picky) TypeName() string { return "Picky" }

func (picky) AcceptsInput(plug, input *Plug) bool {
	return input.Name() != "forbidden"
}

func newAdder(t *testing.T, ctx context.Context, g *Graph, name string) *Node {
	t.Helper()
	n := g.NewNode(name, adder{})
	require.NoError(t, n.AddPlug(ctx, g.NewPlug("a", In, cty.Number, cty.NumberIntVal(0), Default)))
	require.NoError(t, n.AddPlug(ctx, g.NewPlug("b", In, cty.Number, cty.NumberIntVal(0), Default)))
	require.NoError(t, n.AddPlug(ctx, g.NewPlug("sum", Out, cty.Number, cty.NilVal, Default)))
	require.NoError(t, g.Root().AddChild(ctx, n))
	return n
}

// dirtyRecorder records every dirtied plug name emitted by g.
type dirtyRecorder struct {
	names []string
}

func recordDirty(g *Graph) *dirtyRecorder {
	r := &dirtyRecorder{}
	g.PlugDirtiedSignal().Connect(func(_ context.Context, p *Plug) {
		r.names = append(r.names, p.RelativeName(g.Root()))
	})
	return r
}

func (r *dirtyRecorder) count(name string) int {
	n := 0
	for _, s := range r.names {
		if s == name {
			n++
		}
	}
	return n
}
