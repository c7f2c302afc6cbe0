package task

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Plug names shared by every task node.
const (
	PreTasksPlugName   = "preTasks"
	PreTaskPlugName    = "preTask0"
	PostTasksPlugName  = "postTasks"
	PostTaskPlugName   = "postTask0"
	TaskPlugName       = "task"
	DispatcherPlugName = "dispatcher"
	BatchSizePlugName  = "batchSize"
)

// AddTaskPlugs adds the "preTasks", "postTasks" and "task" plugs to n.
func AddTaskPlugs(ctx context.Context, n *graph.Node) error {
	g := n.Graph()
	for _, name := range []string{PreTasksPlugName, PostTasksPlugName} {
		if err := n.AddPlug(ctx, g.NewCompoundPlug(name, graph.In, graph.Default)); err != nil {
			return err
		}
	}
	if _, err := AddPreTask(ctx, n); err != nil {
		return err
	}
	if _, err := AddPostTask(ctx, n); err != nil {
		return err
	}
	out := g.NewPlug(TaskPlugName, graph.Out, cty.DynamicPseudoType, cty.NilVal, graph.Default&^graph.Serialisable)
	return n.AddPlug(ctx, out)
}

// AddPreTask adds one more requirement slot to the "preTasks" plug of n.
func AddPreTask(ctx context.Context, n *graph.Node) (*graph.Plug, error) {
	return addSlot(ctx, n, PreTasksPlugName, PreTaskPlugName)
}

// AddPostTask adds one more slot to the "postTasks" plug of n.
func AddPostTask(ctx context.Context, n *graph.Node) (*graph.Plug, error) {
	return addSlot(ctx, n, PostTasksPlugName, PostTaskPlugName)
}

func addSlot(ctx context.Context, n *graph.Node, parent, child string) (*graph.Plug, error) {
	compound := n.Plug(parent)
	if compound == nil {
		return nil, fmt.Errorf("%w: %s has no %s plug", graph.ErrInvalidOperation, n.FullName(), parent)
	}
	p := n.Graph().NewPlug(child, graph.In, cty.DynamicPseudoType, cty.NilVal, graph.Default)
	if err := compound.AddChild(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FreePreTask returns an unconnected "preTasks" child of n, adding one when
// every existing slot is in use.
func FreePreTask(ctx context.Context, n *graph.Node) (*graph.Plug, error) {
	if p := freeSlot(n, PreTasksPlugName); p != nil {
		return p, nil
	}
	return AddPreTask(ctx, n)
}

// FreePostTask is FreePreTask for the "postTasks" plug.
func FreePostTask(ctx context.Context, n *graph.Node) (*graph.Plug, error) {
	if p := freeSlot(n, PostTasksPlugName); p != nil {
		return p, nil
	}
	return AddPostTask(ctx, n)
}

func freeSlot(n *graph.Node, parent string) *graph.Plug {
	if compound := n.Plug(parent); compound != nil {
		for _, p := range compound.PlugChildren() {
			if p.Input() == nil {
				return p
			}
		}
	}
	return nil
}

// PreTaskNodes returns the task nodes connected to the "preTasks" plug of n,
// in slot order. Connections that pass through other plugs, such as box
// outputs, are followed to their source.
func PreTaskNodes(n *graph.Node) []*graph.Node {
	return connectedTasks(n, PreTasksPlugName)
}

// PostTaskNodes returns the task nodes connected to the "postTasks" plug of
// n, in slot order.
func PostTaskNodes(n *graph.Node) []*graph.Node {
	return connectedTasks(n, PostTasksPlugName)
}

func connectedTasks(n *graph.Node, parent string) []*graph.Node {
	compound := n.Plug(parent)
	if compound == nil {
		return nil
	}
	var out []*graph.Node
	for _, p := range compound.PlugChildren() {
		src := p.Source()
		if src == p {
			continue
		}
		if owner := src.Node(); owner != nil && IsTaskNode(owner) {
			out = append(out, owner)
		}
	}
	return out
}

// PreTaskRequirements is the default Requirements implementation: one task
// per connected pre-task, in the same context.
func PreTaskRequirements(n *graph.Node, c *execctx.Context) []*Task {
	return tasksOf(PreTaskNodes(n), c)
}

// PostTasks returns one task per connected post-task, in the same context.
// A post-task runs after the task that names it, which becomes one of its
// requirements.
func PostTasks(n *graph.Node, c *execctx.Context) []*Task {
	return tasksOf(PostTaskNodes(n), c)
}

func tasksOf(nodes []*graph.Node, c *execctx.Context) []*Task {
	var out []*Task
	for _, n := range nodes {
		out = append(out, New(n, c))
	}
	return out
}

// HashInputs appends the type of n and the hashes of its input leaves to h.
// The "preTasks", "postTasks" and "dispatcher" plugs never contribute.
func HashInputs(ctx context.Context, n *graph.Node, c *execctx.Context, ev Evaluator, h *hashing.Builder) error {
	h.String(n.TypeName())
	for _, p := range graph.LeafPlugs(n, graph.In) {
		if isTaskPlumbing(n, p) {
			continue
		}
		ph, err := ev.Hash(ctx, p, c)
		if err != nil {
			return err
		}
		h.String(p.RelativeName(n)).Hash(ph)
	}
	return nil
}

func isTaskPlumbing(n *graph.Node, p *graph.Plug) bool {
	for _, name := range []string{PreTasksPlugName, PostTasksPlugName, DispatcherPlugName} {
		if root := n.Plug(name); root != nil && (root == p || root.IsAncestorOf(p)) {
			return true
		}
	}
	return false
}

// BatchSize returns the value of the "dispatcher.batchSize" plug of n in c,
// or 1 when the node has no such plug.
func BatchSize(ctx context.Context, n *graph.Node, c *execctx.Context, ev Evaluator) (int, error) {
	p := n.Plug(DispatcherPlugName + "." + BatchSizePlugName)
	if p == nil {
		return 1, nil
	}
	v, err := ev.Value(ctx, p, c)
	if err != nil {
		return 0, err
	}
	if v.IsNull() || !v.IsKnown() {
		return 1, nil
	}
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return 0, fmt.Errorf("batch size of %s: %w", n.FullName(), err)
	}
	if f < 1 || math.IsNaN(f) {
		return 1, nil
	}
	return int(f), nil
}
