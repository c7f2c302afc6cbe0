// Package executor defines the interface of execution backends and the Job
// they receive: the ordered batches produced by the scheduler, together with
// the job's name, directory and context.
package executor

import (
	"context"

	"github.com/vk/nodeflow/internal/graph"
)

// Executor runs the batches of a job. Implementations are registered by
// name with a dispatch registry.
type Executor interface {
	// Name identifies the executor in the registry and in plug names.
	Name() string
	// Execute runs the job. It may return before the job finishes when the
	// executor runs jobs in the background.
	Execute(ctx context.Context, job *Job) error
	// SetupPlugs adds executor specific settings under the "dispatcher"
	// plug of a task node.
	SetupPlugs(ctx context.Context, parent *graph.Plug) error
}
