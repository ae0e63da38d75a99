package solver

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/firasghr/powcaptcha/challenge"
)

// Fallback runs the search on the goroutine that calls Next, one batch per
// call, yielding the processor between batches.  It shares Params with
// Background, so its bounds are the same.  It never reports
// OutcomeWorkerUnavailable.
//
// Next must not be called concurrently; Dispose may be called from any
// goroutine.
type Fallback struct {
	params Params

	ch       challenge.Challenge
	started  bool
	finished bool
	nonce    uint64
	deadline time.Time

	disposed atomic.Bool
}

// NewFallback returns an idle fallback solver.
func NewFallback(p Params) (*Fallback, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Fallback{params: p.normalized()}, nil
}

// Start records the challenge and starts the wall-clock budget.
func (f *Fallback) Start(c challenge.Challenge) {
	if f.started || f.disposed.Load() {
		return
	}
	f.ch = c
	f.started = true
	f.deadline = time.Now().Add(f.params.Limits.MaxDuration)
}

// Next hashes one batch and reports progress, or returns the terminal
// outcome.
func (f *Fallback) Next(ctx context.Context) (Event, bool) {
	if !f.started || f.finished || f.disposed.Load() || ctx.Err() != nil {
		return Event{}, false
	}

	limits := f.params.Limits
	if !time.Now().Before(f.deadline) {
		return f.finish(Outcome{
			Kind:   OutcomeTimeout,
			Reason: fmt.Sprintf("no solution within %s", limits.MaxDuration),
		})
	}
	if f.nonce >= limits.MaxIterations {
		return f.finish(Outcome{Kind: OutcomeIterationLimitReached})
	}

	count := limits.BatchSize
	if left := limits.MaxIterations - f.nonce; left < count {
		count = left
	}
	sol, next, _, found, err := safeScan(f.params.Hash, f.ch, f.nonce, 1, count)
	if err != nil {
		return f.finish(Outcome{Kind: OutcomeError, Reason: err.Error()})
	}
	f.nonce = next
	if found {
		return f.finish(Outcome{Kind: OutcomeResult, Solution: sol})
	}
	if f.nonce >= limits.MaxIterations {
		return f.finish(Outcome{Kind: OutcomeIterationLimitReached})
	}

	runtime.Gosched()
	if f.disposed.Load() {
		return Event{}, false
	}
	return progressEvent(f.nonce, f.ch.Difficulty), true
}

// Dispose stops the search.  The batch in progress, if any, finishes but
// its result is dropped.
func (f *Fallback) Dispose() {
	f.disposed.Store(true)
}

func (f *Fallback) finish(o Outcome) (Event, bool) {
	f.finished = true
	o.Attempts = f.nonce
	if f.disposed.Load() {
		return Event{}, false
	}
	return terminal(o), true
}
