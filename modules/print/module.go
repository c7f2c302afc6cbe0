// Package print provides Print, a task node that writes a substituted
// message for every frame it runs on.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Module implements the registry.Module interface for this package. Out
// receives the printed text; nil means os.Stdout.
type Module struct {
	Out io.Writer
}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	p := &Print{out: out}
	r.RegisterNodeType(&registry.NodeType{
		Name:        "Print",
		Description: "Prints a message and a sorted map of values for every frame.",
		New: func(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
			return New(ctx, g, name, p)
		},
	})
}

// Print writes to a shared writer. Workers may run several Print tasks at
// once, so writes are serialised.
type Print struct {
	mu  sync.Mutex
	out io.Writer
}

func (*Print) TypeName() string { return "Print" }

func (*Print) ExecutionHash(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (hashing.Hash, error) {
	msg, err := task.StringValue(ctx, ev, n, "message", c)
	if err != nil {
		return hashing.Zero, err
	}
	h := hashing.New()
	if err := task.HashInputs(ctx, n, c, ev, h); err != nil {
		return hashing.Zero, err
	}
	return h.String(c.Substitute(msg)).Float(c.Frame()).Sum(), nil
}

func (*Print) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (p *Print) Execute(ctx context.Context, n *graph.Node, contexts []*execctx.Context, ev task.Evaluator) error {
	ctxlog.FromContext(ctx).Info("Printing input", "node", n.FullName(), "frames", len(contexts))
	for _, c := range contexts {
		msg, err := task.StringValue(ctx, ev, n, "message", c)
		if err != nil {
			return err
		}
		values, err := task.PlugValue(ctx, ev, n, "values", c)
		if err != nil {
			return err
		}
		var m map[string]string
		if !values.IsNull() && values.LengthInt() > 0 {
			if err := gocty.FromCtyValue(values, &m); err != nil {
				return fmt.Errorf("plug %s.values: %w", n.FullName(), err)
			}
		}
		if err := p.print(c.Substitute(msg), m); err != nil {
			return err
		}
	}
	return nil
}

func (p *Print) print(msg string, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg != "" {
		if _, err := fmt.Fprintln(p.out, msg); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(p.out, "      %s = %q\n", k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// New builds a Print node writing through p.
func New(ctx context.Context, g *graph.Graph, name string, p *Print) (*graph.Node, error) {
	n := g.NewNode(name, p)
	if err := task.AddTaskPlugs(ctx, n); err != nil {
		return nil, err
	}
	for _, plug := range []*graph.Plug{
		g.NewPlug("message", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("values", graph.In, cty.Map(cty.String), cty.MapValEmpty(cty.String), graph.Default),
	} {
		if err := n.AddPlug(ctx, plug); err != nil {
			return nil, err
		}
	}
	return n, nil
}
