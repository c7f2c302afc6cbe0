package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/zclconf/go-cty/cty"
)

// Evaluator hashes and evaluates plugs in a context. compute.Cache is the
// production implementation.
type Evaluator interface {
	Hash(ctx context.Context, p *graph.Plug, c *execctx.Context) (hashing.Hash, error)
	Value(ctx context.Context, p *graph.Plug, c *execctx.Context) (cty.Value, error)
}

// Executable is implemented by behaviours of nodes that can be dispatched.
//
// ExecutionHash identifies the work the node would do in c. Two tasks for the
// same node with the same non-zero hash are the same work. A node that does
// nothing itself returns hashing.Zero.
//
// Requirements lists the tasks that must complete before the node executes
// in c.
//
// Execute performs the work for every context in contexts. Contexts differ
// only by frame.
type Executable interface {
	ExecutionHash(ctx context.Context, n *graph.Node, c *execctx.Context, ev Evaluator) (hashing.Hash, error)
	Requirements(ctx context.Context, n *graph.Node, c *execctx.Context, ev Evaluator) ([]*Task, error)
	Execute(ctx context.Context, n *graph.Node, contexts []*execctx.Context, ev Evaluator) error
}

// Sequential is implemented by executables whose frames must run one at a
// time, in ascending order, within a single batch.
type Sequential interface {
	RequiresSequenceExecution(n *graph.Node) bool
}

// Task is a request to execute a node in a context. The hash is computed on
// first use and never changes afterwards, so a Task is safe to use as a key.
type Task struct {
	node    *graph.Node
	context *execctx.Context

	once sync.Once
	hash hashing.Hash
	err  error
}

// New creates a Task for n in c. The context is flattened, so later edits to
// c or its parents are not seen by the task.
func New(n *graph.Node, c *execctx.Context) *Task {
	return &Task{node: n, context: c.Flatten()}
}

// Node returns the node to execute.
func (t *Task) Node() *graph.Node { return t.node }

// Context returns the context to execute in.
func (t *Task) Context() *execctx.Context { return t.context }

// Frame returns the frame of the task context.
func (t *Task) Frame() float64 { return t.context.Frame() }

// Executable returns the node behaviour as an Executable.
func (t *Task) Executable() (Executable, error) {
	return ExecutableOf(t.node)
}

// Hash returns the execution hash of the task, computing it once.
func (t *Task) Hash(ctx context.Context, ev Evaluator) (hashing.Hash, error) {
	t.once.Do(func() {
		exec, err := t.Executable()
		if err != nil {
			t.err = err
			return
		}
		t.hash, t.err = exec.ExecutionHash(ctx, t.node, t.context, ev)
	})
	return t.hash, t.err
}

// Equal reports whether t and other are the same work: the same node with
// the same hash. Both tasks must have been hashed.
func (t *Task) Equal(other *Task) bool {
	if t == other {
		return true
	}
	if other == nil || t.node != other.node {
		return false
	}
	return t.hash == other.hash && t.err == nil && other.err == nil
}

// String describes the task for log output.
func (t *Task) String() string {
	return fmt.Sprintf("%s@%g", t.node.FullName(), t.Frame())
}

// ExecutableOf returns the Executable behaviour of n.
func ExecutableOf(n *graph.Node) (Executable, error) {
	exec, ok := n.Behavior().(Executable)
	if !ok {
		return nil, fmt.Errorf("node %s (%s) is not a task node", n.FullName(), n.TypeName())
	}
	return exec, nil
}

// IsTaskNode reports whether n can be dispatched.
func IsTaskNode(n *graph.Node) bool {
	_, ok := n.Behavior().(Executable)
	return ok
}

// RequiresSequenceExecution reports whether n declares sequential frames.
func RequiresSequenceExecution(n *graph.Node) bool {
	s, ok := n.Behavior().(Sequential)
	return ok && s.RequiresSequenceExecution(n)
}
