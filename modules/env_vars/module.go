// Package env_vars provides Environment, a computing node that reads a
// variable from the process environment.
package env_vars

import (
	"context"
	"os"

	"github.com/vk/nodeflow/internal/compute"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{
		Name:        "Environment",
		Description: "Outputs the value of the process environment variable called name.",
		New:         New,
	})
}

// Environment outputs value = $name, or fallback when the variable is unset.
type Environment struct{}

func (Environment) TypeName() string { return "Environment" }

func (Environment) Affects(input *graph.Plug) []*graph.Plug {
	switch input.Name() {
	case "name", "fallback":
		if out := input.Node().Plug("value"); out != nil {
			return []*graph.Plug{out}
		}
	}
	return nil
}

// HashOutput includes the variable itself. value is not Cacheable, so the
// hash is taken again on every read and follows the environment. name cannot
// be connected, so its static value is the one Compute will see.
func (Environment) HashOutput(_ context.Context, out *graph.Plug, _ *execctx.Context, h *hashing.Builder) error {
	v, ok := lookup(out.Node())
	h.String(v).Bool(ok)
	return nil
}

func (Environment) Compute(_ context.Context, out *graph.Plug, _ *execctx.Context, in compute.Inputs) (cty.Value, error) {
	if v, ok := lookup(out.Node()); ok {
		return cty.StringVal(v), nil
	}
	fallback, err := in.String("fallback")
	if err != nil {
		return cty.NilVal, err
	}
	return cty.StringVal(fallback), nil
}

func lookup(n *graph.Node) (string, bool) {
	name := n.Plug("name").Value()
	if name.IsNull() || name.AsString() == "" {
		return "", false
	}
	return os.LookupEnv(name.AsString())
}

// New builds an Environment node.
func New(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
	n := g.NewNode(name, Environment{})
	for _, p := range []*graph.Plug{
		g.NewPlug("name", graph.In, cty.String, cty.StringVal(""), graph.Default&^graph.AcceptsInputs),
		g.NewPlug("fallback", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("value", graph.Out, cty.String, cty.StringVal(""), graph.Default&^graph.Cacheable),
	} {
		if err := n.AddPlug(ctx, p); err != nil {
			return nil, err
		}
	}
	return n, nil
}
