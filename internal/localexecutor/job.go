package localexecutor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/executor"
	"github.com/vk/nodeflow/internal/jobstore"
)

// ErrKilled is returned by Job.Wait for jobs stopped with Kill.
var ErrKilled = errors.New("job killed")

// Job is a job executing in this process.
type Job struct {
	job     *executor.Job
	workers int
	store   *jobstore.Store

	cancel context.CancelFunc
	done   chan struct{}
	killed atomic.Bool
	err    error

	mu         sync.Mutex
	pending    map[*executor.Batch]int
	settled    map[*executor.Batch]bool
	dependents map[*executor.Batch][]*executor.Batch
	wg         sync.WaitGroup
}

func newJob(job *executor.Job, workers int) *Job {
	j := &Job{
		job:        job,
		workers:    workers,
		store:      jobstore.New(),
		done:       make(chan struct{}),
		cancel:     func() {},
		pending:    make(map[*executor.Batch]int),
		settled:    make(map[*executor.Batch]bool),
		dependents: make(map[*executor.Batch][]*executor.Batch),
	}
	for _, b := range job.Batches {
		j.pending[b] = len(b.Requirements)
		for _, r := range b.Requirements {
			j.dependents[r] = append(j.dependents[r], b)
		}
	}
	return j
}

// Name returns the job name.
func (j *Job) Name() string { return j.job.Name }

// Directory returns the job directory.
func (j *Job) Directory() string { return j.job.Directory }

// Batches returns the batches of the job in plan order.
func (j *Job) Batches() []*executor.Batch { return j.job.Batches }

// Status returns the status of a batch.
func (j *Job) Status(b *executor.Batch) jobstore.Status {
	return j.store.Status(context.Background(), b.ID)
}

// Statuses counts the batches in each status.
func (j *Job) Statuses() map[jobstore.Status]int {
	return j.store.Count(context.Background(), j.job.BatchIDs())
}

// BatchError returns the error of a failed batch.
func (j *Job) BatchError(b *executor.Batch) error {
	return j.store.Error(context.Background(), b.ID)
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes and returns its error.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Kill stops the job. Running batches see their context cancelled, and
// batches that have not started are marked killed.
func (j *Job) Kill() {
	j.killed.Store(true)
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	cancel()
}

// Failed reports whether the job finished with an error.
func (j *Job) Failed() bool {
	select {
	case <-j.done:
		return j.err != nil
	default:
		return false
	}
}

// run executes the batches on a pool of workers. A batch becomes ready once
// all of its requirements are complete. A failed batch kills the batches that
// depend on it. Independent batches still run.
func (j *Job) run(ctx context.Context) {
	defer close(j.done)
	logger := ctxlog.FromContext(ctx).With("job", j.job.Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
	if j.killed.Load() {
		cancel()
	}

	batches := j.job.Batches
	ready := make(chan *executor.Batch, len(batches))
	j.wg.Add(len(batches))
	for _, b := range batches {
		if j.pending[b] == 0 {
			ready <- b
		}
	}

	var (
		errMu    sync.Mutex
		firstErr error
	)
	for i := 0; i < j.workers; i++ {
		go func(workerID int) {
			workerLogger := logger.With("workerID", workerID)
			for b := range ready {
				if ctx.Err() != nil {
					j.settle(ctx, b, jobstore.Killed)
					j.killDependents(ctx, b)
					continue
				}

				workerLogger.Debug("Worker picked up batch.", "batch", b.String())
				j.store.SetStatus(ctx, b.ID, jobstore.Running)
				err := executor.RunBatch(ctx, j.job, b)
				if err != nil {
					status := jobstore.Failed
					if j.killed.Load() {
						status = jobstore.Killed
					} else {
						workerLogger.Error("Batch failed.", "batch", b.String(), "error", err)
						j.store.SetError(ctx, b.ID, err)
						errMu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						errMu.Unlock()
					}
					j.settle(ctx, b, status)
					j.killDependents(ctx, b)
					continue
				}

				j.settle(ctx, b, jobstore.Complete)
				for _, d := range j.dependents[b] {
					j.mu.Lock()
					j.pending[d]--
					release := j.pending[d] == 0 && !j.settled[d]
					j.mu.Unlock()
					if release {
						ready <- d
					}
				}
			}
		}(i)
	}

	j.wg.Wait()
	close(ready)

	switch {
	case firstErr != nil:
		j.err = firstErr
	case j.killed.Load():
		j.err = ErrKilled
	}
	counts := j.Statuses()
	if j.err != nil {
		logger.Warn("Job finished with errors.", "error", j.err, "complete", counts[jobstore.Complete],
			"failed", counts[jobstore.Failed], "killed", counts[jobstore.Killed])
		return
	}
	logger.Info("Job complete.", "batches", counts[jobstore.Complete])
}

// settle records the final status of b once.
func (j *Job) settle(ctx context.Context, b *executor.Batch, status jobstore.Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.settled[b] {
		return false
	}
	j.settled[b] = true
	j.store.SetStatus(ctx, b.ID, status)
	j.wg.Done()
	return true
}

func (j *Job) killDependents(ctx context.Context, b *executor.Batch) {
	for _, d := range j.dependents[b] {
		if j.settle(ctx, d, jobstore.Killed) {
			j.killDependents(ctx, d)
		}
	}
}
