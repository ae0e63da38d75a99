// Package worker provides a bounded goroutine pool for running many
// verification attempts with controlled concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker: pool stopped")

// Job is one unit of work.  The context is canceled when the pool's parent
// context ends.
type Job func(ctx context.Context) error

// Pool runs Jobs on a fixed number of goroutines draining a shared queue.
//
// The queue buffers size*4 jobs; Submit blocks when it is full.  Unlike an
// errgroup, a failing job does not cancel the others: every error is kept
// and returned by Stop.
type Pool struct {
	size  int
	jobs  chan Job
	ctx   context.Context
	wg    sync.WaitGroup
	state sync.RWMutex // guards done and the close of jobs
	done  bool

	errMu sync.Mutex
	errs  []error

	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewPool starts size goroutines.  size <= 0 means one.
func NewPool(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		size: size,
		jobs: make(chan Job, size*4),
		ctx:  ctx,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Size returns the number of goroutines.
func (p *Pool) Size() int { return p.size }

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.exec(job); err != nil {
			p.failed.Add(1)
			p.errMu.Lock()
			p.errs = append(p.errs, err)
			p.errMu.Unlock()
			continue
		}
		p.completed.Add(1)
	}
}

func (p *Pool) exec(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: job panicked: %v", r)
		}
	}()
	if err := p.ctx.Err(); err != nil {
		return err
	}
	return job(p.ctx)
}

// Submit enqueues job, blocking while the queue is full.  It returns
// ErrStopped after Stop and ctx's error if ctx ends first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.state.RLock()
	defer p.state.RUnlock()
	if p.done {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for every queued job to finish and returns their errors
// joined.  Submit fails once Stop has been called.  Stop is idempotent.
func (p *Pool) Stop() error {
	p.state.Lock()
	if !p.done {
		p.done = true
		close(p.jobs)
	}
	p.state.Unlock()
	p.wg.Wait()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}

// Stats returns how many jobs finished without and with an error.
func (p *Pool) Stats() (completed, failed uint64) {
	return p.completed.Load(), p.failed.Load()
}
