package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// Execution is one recorded Execute call for one frame.
type Execution struct {
	Node  string
	Frame float64
	Start time.Time
	End   time.Time
}

// RecorderModule registers the "Record" task node type. Every execution is
// appended to the module, in completion order. A Record node fails when its
// fail plug is true and sleeps for its sleepMs plug before finishing.
type RecorderModule struct {
	mu         sync.Mutex
	executions []Execution
}

// Register implements the registry.Module interface.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{
		Name:        "Record",
		Description: "Records its executions for tests.",
		New: func(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
			n := g.NewNode(name, &record{m: m})
			if err := task.AddTaskPlugs(ctx, n); err != nil {
				return nil, err
			}
			for _, p := range []*graph.Plug{
				g.NewPlug("fail", graph.In, cty.Bool, cty.False, graph.Default),
				g.NewPlug("sleepMs", graph.In, cty.Number, cty.Zero, graph.Default),
				g.NewPlug("label", graph.In, cty.String, cty.StringVal(""), graph.Default),
			} {
				if err := n.AddPlug(ctx, p); err != nil {
					return nil, err
				}
			}
			return n, nil
		},
	})
}

// Executions returns a copy of what ran so far.
func (m *RecorderModule) Executions() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Execution(nil), m.executions...)
}

// Order returns "node@frame" strings in completion order.
func (m *RecorderModule) Order() []string {
	var out []string
	for _, e := range m.Executions() {
		out = append(out, fmt.Sprintf("%s@%g", e.Node, e.Frame))
	}
	return out
}

// Nodes returns the sorted set of node names that ran.
func (m *RecorderModule) Nodes() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range m.Executions() {
		if !seen[e.Node] {
			seen[e.Node] = true
			out = append(out, e.Node)
		}
	}
	sort.Strings(out)
	return out
}

func (m *RecorderModule) add(e Execution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, e)
}

type record struct {
	m *RecorderModule
}

func (*record) TypeName() string { return "Record" }

func (*record) ExecutionHash(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (hashing.Hash, error) {
	h := hashing.New()
	if err := task.HashInputs(ctx, n, c, ev, h); err != nil {
		return hashing.Zero, err
	}
	return h.String(n.FullName()).Float(c.Frame()).Sum(), nil
}

func (*record) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (r *record) Execute(ctx context.Context, n *graph.Node, contexts []*execctx.Context, ev task.Evaluator) error {
	for _, c := range contexts {
		start := time.Now()
		sleep, err := task.PlugValue(ctx, ev, n, "sleepMs", c)
		if err != nil {
			return err
		}
		if ms, _ := sleep.AsBigFloat().Int64(); ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		fail, err := task.BoolValue(ctx, ev, n, "fail", c)
		if err != nil {
			return err
		}
		if fail {
			return fmt.Errorf("%s failed on frame %g", n.Name(), c.Frame())
		}
		r.m.add(Execution{Node: n.Name(), Frame: c.Frame(), Start: start, End: time.Now()})
	}
	return nil
}
