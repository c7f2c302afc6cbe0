// Package tasklist provides TaskList, a task node that does no work of its
// own and only gathers the tasks connected to its preTasks plug.
package tasklist

import (
	"context"

	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{
		Name:        "TaskList",
		Description: "Groups the tasks connected to its preTasks plug.",
		New:         New,
	})
}

// TaskList is a no-op task node.
type TaskList struct{}

func (TaskList) TypeName() string { return "TaskList" }

// ExecutionHash is always zero: a TaskList computes nothing.
func (TaskList) ExecutionHash(context.Context, *graph.Node, *execctx.Context, task.Evaluator) (hashing.Hash, error) {
	return hashing.Zero, nil
}

func (TaskList) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (TaskList) Execute(context.Context, *graph.Node, []*execctx.Context, task.Evaluator) error {
	return nil
}

// New builds a TaskList node.
func New(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
	n := g.NewNode(name, TaskList{})
	return n, task.AddTaskPlugs(ctx, n)
}
