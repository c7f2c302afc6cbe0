// Package arith provides computing nodes: Add sums two numbers and Frame
// reports the current frame.
package arith

import (
	"context"

	"github.com/vk/nodeflow/internal/compute"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{
		Name:        "Add",
		Description: "Outputs the sum of its inputs a and b.",
		New:         NewAdd,
	})
	r.RegisterNodeType(&registry.NodeType{
		Name:        "Frame",
		Description: "Outputs the current frame multiplied by scale.",
		New:         NewFrame,
	})
}

// Add outputs sum = a + b.
type Add struct{}

func (Add) TypeName() string { return "Add" }

func (Add) Affects(input *graph.Plug) []*graph.Plug {
	switch input.Name() {
	case "a", "b":
		if sum := input.Node().Plug("sum"); sum != nil {
			return []*graph.Plug{sum}
		}
	}
	return nil
}

func (Add) HashOutput(context.Context, *graph.Plug, *execctx.Context, *hashing.Builder) error {
	return nil
}

func (Add) Compute(_ context.Context, _ *graph.Plug, _ *execctx.Context, in compute.Inputs) (cty.Value, error) {
	a, err := in.Number("a")
	if err != nil {
		return cty.NilVal, err
	}
	b, err := in.Number("b")
	if err != nil {
		return cty.NilVal, err
	}
	return cty.NumberFloatVal(a + b), nil
}

// NewAdd builds an Add node.
func NewAdd(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
	n := g.NewNode(name, Add{})
	return n, addPlugs(ctx, n,
		g.NewPlug("a", graph.In, cty.Number, cty.Zero, graph.Default),
		g.NewPlug("b", graph.In, cty.Number, cty.Zero, graph.Default),
		g.NewPlug("sum", graph.Out, cty.Number, cty.Zero, graph.Default),
	)
}

// Frame outputs frame * scale.
type Frame struct{}

func (Frame) TypeName() string { return "Frame" }

func (Frame) Affects(input *graph.Plug) []*graph.Plug {
	if input.Name() != "scale" {
		return nil
	}
	if out := input.Node().Plug("output"); out != nil {
		return []*graph.Plug{out}
	}
	return nil
}

func (Frame) HashOutput(_ context.Context, _ *graph.Plug, c *execctx.Context, h *hashing.Builder) error {
	h.Float(c.Frame())
	return nil
}

func (Frame) Compute(_ context.Context, _ *graph.Plug, c *execctx.Context, in compute.Inputs) (cty.Value, error) {
	scale, err := in.Number("scale")
	if err != nil {
		return cty.NilVal, err
	}
	return cty.NumberFloatVal(c.Frame() * scale), nil
}

// NewFrame builds a Frame node.
func NewFrame(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
	n := g.NewNode(name, Frame{})
	return n, addPlugs(ctx, n,
		g.NewPlug("scale", graph.In, cty.Number, cty.NumberIntVal(1), graph.Default),
		g.NewPlug("output", graph.Out, cty.Number, cty.Zero, graph.Default),
	)
}

func addPlugs(ctx context.Context, n *graph.Node, plugs ...*graph.Plug) error {
	for _, p := range plugs {
		if err := n.AddPlug(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
