package localexecutor

import (
	"errors"
	"sync"
)

// JobPool tracks the jobs of an Executor. Jobs leave the pool when they
// finish; failed jobs are kept in a separate list for inspection.
type JobPool struct {
	mu     sync.Mutex
	jobs   []*Job
	failed []*Job
}

// NewJobPool creates an empty pool.
func NewJobPool() *JobPool {
	return &JobPool{}
}

func (p *JobPool) add(j *Job) {
	p.mu.Lock()
	p.jobs = append(p.jobs, j)
	p.mu.Unlock()

	go func() {
		<-j.Done()
		p.remove(j)
	}()
}

func (p *JobPool) remove(j *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, candidate := range p.jobs {
		if candidate == j {
			p.jobs = append(p.jobs[:i], p.jobs[i+1:]...)
			break
		}
	}
	if j.Failed() {
		p.failed = append(p.failed, j)
	}
}

// Jobs returns the jobs that have not finished.
func (p *JobPool) Jobs() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Job(nil), p.jobs...)
}

// FailedJobs returns the jobs that finished with an error.
func (p *JobPool) FailedJobs() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Job(nil), p.failed...)
}

// WaitForAll blocks until every tracked job has finished and returns their
// errors joined.
func (p *JobPool) WaitForAll() error {
	var errs []error
	for _, j := range p.Jobs() {
		if err := j.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
