package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/scheduler"
	"github.com/vk/nodeflow/internal/task"
)

// Batch is one node executed for one or more frames.
type Batch struct {
	// ID is the position of the batch in the job.
	ID   int
	Node *graph.Node
	Hash hashing.Hash
	// Frames and Contexts are parallel. Both are empty for batches that do
	// no work of their own.
	Frames       []float64
	Contexts     []*execctx.Context
	Requirements []*Batch
	Sequential   bool
}

// String describes the batch for log output.
func (b *Batch) String() string {
	if len(b.Frames) == 0 {
		return b.Node.FullName()
	}
	parts := make([]string, len(b.Frames))
	for i, f := range b.Frames {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return fmt.Sprintf("%s[%s]", b.Node.FullName(), strings.Join(parts, ","))
}

// NoOp reports whether the batch has nothing to execute.
func (b *Batch) NoOp() bool { return len(b.Contexts) == 0 }

// Job is a dispatched plan.
type Job struct {
	Name      string
	Directory string
	// Context is the context the tasks were created in. It carries the job
	// directory and script file name entries.
	Context   *execctx.Context
	Evaluator task.Evaluator
	Batches   []*Batch
}

// NewJob converts a plan into batches, keeping its order.
func NewJob(name, dir string, c *execctx.Context, plan *scheduler.Plan, ev task.Evaluator) *Job {
	job := &Job{Name: name, Directory: dir, Context: c, Evaluator: ev}
	byDescription := make(map[*scheduler.Description]*Batch, plan.Len())
	for i, d := range plan.Descriptions {
		b := &Batch{
			ID:         i,
			Node:       d.Task.Node(),
			Hash:       d.Hash,
			Frames:     append([]float64(nil), d.Frames...),
			Sequential: d.Sequential(),
		}
		for _, f := range d.Frames {
			b.Contexts = append(b.Contexts, d.Task.Context().WithFrame(f))
		}
		byDescription[d] = b
		job.Batches = append(job.Batches, b)
	}
	for _, d := range plan.Descriptions {
		b := byDescription[d]
		for _, r := range d.Requirements {
			b.Requirements = append(b.Requirements, byDescription[r])
		}
	}
	return job
}

// BatchIDs returns the IDs of all batches.
func (j *Job) BatchIDs() []int {
	ids := make([]int, len(j.Batches))
	for i, b := range j.Batches {
		ids[i] = b.ID
	}
	return ids
}

// RunBatch executes b. Sequential batches execute one frame at a time.
func RunBatch(ctx context.Context, job *Job, b *Batch) error {
	logger := ctxlog.FromContext(ctx).With("job", job.Name, "batch", b.String())
	if b.NoOp() {
		logger.Debug("Batch has nothing to execute.")
		return nil
	}
	exec, err := task.ExecutableOf(b.Node)
	if err != nil {
		return err
	}

	logger.Debug("Executing batch.")
	if b.Sequential {
		for _, c := range b.Contexts {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := exec.Execute(ctx, b.Node, []*execctx.Context{c}, job.Evaluator); err != nil {
				return fmt.Errorf("executing %s at frame %g: %w", b.Node.FullName(), c.Frame(), err)
			}
		}
	} else if err := exec.Execute(ctx, b.Node, b.Contexts, job.Evaluator); err != nil {
		return fmt.Errorf("executing %s: %w", b, err)
	}
	logger.Debug("Batch executed.")
	return nil
}
