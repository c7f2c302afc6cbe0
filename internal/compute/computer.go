package compute

import (
	"context"
	"fmt"

	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Computer is implemented by node behaviours that compute output values.
//
// HashOutput appends whatever the value of out depends on beyond the input
// plugs that affect it, such as context entries. Inputs reported by the
// node's Affects are hashed by the Cache and need not be appended again.
// Compute must be a pure function of what was hashed.
type Computer interface {
	HashOutput(ctx context.Context, out *graph.Plug, c *execctx.Context, h *hashing.Builder) error
	Compute(ctx context.Context, out *graph.Plug, c *execctx.Context, in Inputs) (cty.Value, error)
}

// Inputs gives a Computer access to the values of its node's plugs.
type Inputs struct {
	ctx   context.Context
	cache *Cache
	node  *graph.Node
	c     *execctx.Context
}

// Value evaluates the plug at path, relative to the node.
func (in Inputs) Value(path string) (cty.Value, error) {
	p := in.node.Plug(path)
	if p == nil {
		return cty.NilVal, fmt.Errorf("%s has no plug %q", in.node.FullName(), path)
	}
	return in.cache.Value(in.ctx, p, in.c)
}

// Number evaluates a plug as a float64.
func (in Inputs) Number(path string) (float64, error) {
	v, err := in.Value(path)
	if err != nil {
		return 0, err
	}
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return 0, fmt.Errorf("plug %s.%s: %w", in.node.FullName(), path, err)
	}
	return f, nil
}

// String evaluates a plug as a string.
func (in Inputs) String(path string) (string, error) {
	v, err := in.Value(path)
	if err != nil {
		return "", err
	}
	var s string
	if err := gocty.FromCtyValue(v, &s); err != nil {
		return "", fmt.Errorf("plug %s.%s: %w", in.node.FullName(), path, err)
	}
	return s, nil
}

// Context returns the context the computation runs in.
func (in Inputs) Context() *execctx.Context { return in.c }
