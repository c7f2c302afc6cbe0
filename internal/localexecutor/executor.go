package localexecutor

import (
	"context"
	"fmt"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/executor"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// Name is the registry name of the local executor.
const Name = "local"

// Plug names added under the "dispatcher" plug of task nodes.
const (
	PlugName                = "local"
	ExecuteInForegroundName = "executeInForeground"
)

// Options configures an Executor.
type Options struct {
	// Workers is the number of batches that may execute at once.
	Workers int
	// Background runs jobs on a goroutine and returns from Execute at once.
	Background bool
}

// Executor implements executor.Executor for in-process execution.
type Executor struct {
	opts Options
	pool *JobPool
}

// New creates a new local executor.
func New(opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Executor{opts: opts, pool: NewJobPool()}
}

// Name implements executor.Executor.
func (e *Executor) Name() string { return Name }

// Pool returns the pool tracking the executor's jobs.
func (e *Executor) Pool() *JobPool { return e.pool }

// SetupPlugs adds the "local.executeInForeground" setting.
func (e *Executor) SetupPlugs(ctx context.Context, parent *graph.Plug) error {
	if parent.Child(PlugName) != nil {
		return nil
	}
	g := parent.Graph()
	local := g.NewCompoundPlug(PlugName, graph.In, graph.Default)
	fg := g.NewPlug(ExecuteInForegroundName, graph.In, cty.Bool, cty.False, graph.Default)
	if err := local.AddChild(ctx, fg); err != nil {
		return err
	}
	return parent.AddChild(ctx, local)
}

// Execute runs the job, in the background when the executor is configured
// so and no batch asks for foreground execution.
func (e *Executor) Execute(ctx context.Context, job *executor.Job) error {
	logger := ctxlog.FromContext(ctx).With("job", job.Name)
	j := newJob(job, e.opts.Workers)
	e.pool.add(j)

	background := e.opts.Background
	if background {
		fg, err := forcesForeground(ctx, job)
		if err != nil {
			return err
		}
		background = !fg
	}

	if background {
		logger.Info("Executing job in the background.", "batches", len(job.Batches), "directory", job.Directory)
		go j.run(ctxlog.Detach(ctx))
		return nil
	}

	logger.Info("Executing job.", "batches", len(job.Batches), "directory", job.Directory)
	j.run(ctx)
	if err := j.Wait(); err != nil {
		return fmt.Errorf("job %s failed: %w", job.Name, err)
	}
	return nil
}

// forcesForeground reports whether any batch has executeInForeground set.
func forcesForeground(ctx context.Context, job *executor.Job) (bool, error) {
	path := task.DispatcherPlugName + "." + PlugName + "." + ExecuteInForegroundName
	for _, b := range job.Batches {
		p := b.Node.Plug(path)
		if p == nil {
			continue
		}
		v, err := job.Evaluator.Value(ctx, p, contextOf(job, b))
		if err != nil {
			return false, err
		}
		if v.Type() == cty.Bool && v.IsKnown() && !v.IsNull() && v.True() {
			return true, nil
		}
	}
	return false, nil
}

// contextOf returns the first context of b, or the job context.
func contextOf(job *executor.Job, b *executor.Batch) *execctx.Context {
	if len(b.Contexts) > 0 {
		return b.Contexts[0]
	}
	return job.Context
}
