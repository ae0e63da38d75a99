package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/firasghr/powcaptcha/challenge"
)

// progressInterval throttles background progress reports.
const progressInterval = 50 * time.Millisecond

var (
	errFound          = errors.New("solution found")
	errIterationLimit = errors.New("iteration limit")
	errCrashed        = errors.New("search goroutine crashed")
)

// Background searches on Params.Workers goroutines spawned for this search
// alone.  Worker w tries nonces w, w+W, w+2W, ...; a shared counter enforces
// MaxIterations across all of them.
type Background struct {
	params   Params
	capacity *Capacity

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	finished chan struct{}
	events   chan Event

	// claimed reserves budget in batches; computed counts hashes run.
	claimed  atomic.Uint64
	computed atomic.Uint64
	found    atomic.Pointer[challenge.Solution]
	report   rate.Sometimes

	mu          sync.Mutex
	started     bool
	disposed    bool
	wg          sync.WaitGroup
	disposeOnce sync.Once
}

// NewBackground claims a slot from capacity and returns an idle solver.  It
// fails with ErrSolverUnavailable when no slot is free.
func NewBackground(p Params, capacity *Capacity) (*Background, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if capacity != nil && !capacity.TryAcquire() {
		return nil, fmt.Errorf("%w: background capacity exhausted", ErrSolverUnavailable)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{
		params:   p.normalized(),
		capacity: capacity,
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		events:   make(chan Event),
		report:   rate.Sometimes{Interval: progressInterval},
	}, nil
}

// Start launches the search goroutines.
func (b *Background) Start(c challenge.Challenge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.disposed {
		return
	}
	b.started = true
	b.wg.Add(1)
	go b.run(c)
}

// Next returns the next event.
func (b *Background) Next(ctx context.Context) (Event, bool) {
	select {
	case <-b.stop:
		return Event{}, false
	default:
	}
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-b.stop:
		return Event{}, false
	case <-b.finished:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Dispose stops every search goroutine, waits for them to exit and releases
// the capacity slot.
func (b *Background) Dispose() {
	b.disposeOnce.Do(func() {
		b.mu.Lock()
		b.disposed = true
		close(b.stop)
		b.cancel()
		b.mu.Unlock()

		b.wg.Wait()
		if b.capacity != nil {
			b.capacity.Release()
		}
	})
}

func (b *Background) run(c challenge.Challenge) {
	defer b.wg.Done()
	defer close(b.finished)

	ctx, cancel := context.WithTimeout(b.ctx, b.params.Limits.MaxDuration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	workers := uint64(b.params.Workers)
	for w := uint64(0); w < workers; w++ {
		start := w
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", errCrashed, r)
				}
			}()
			return b.search(gctx, c, start, workers)
		})
	}
	err := g.Wait()

	o := Outcome{Attempts: b.computed.Load()}
	switch sol := b.found.Load(); {
	case sol != nil:
		o.Kind, o.Solution = OutcomeResult, *sol
	case b.ctx.Err() != nil:
		// Disposed; nobody is listening.
		return
	case errors.Is(err, errCrashed):
		o.Kind, o.Reason = OutcomeWorkerUnavailable, err.Error()
	case errors.Is(err, errIterationLimit):
		o.Kind = OutcomeIterationLimitReached
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		o.Kind, o.Reason = OutcomeTimeout, fmt.Sprintf("no solution within %s", b.params.Limits.MaxDuration)
	case err != nil:
		o.Kind, o.Reason = OutcomeError, err.Error()
	default:
		o.Kind, o.Reason = OutcomeError, "search ended without an outcome"
	}

	select {
	case b.events <- terminal(o):
	case <-b.stop:
	}
}

// search runs one worker until a solution is found, the shared budget is
// spent, or ctx ends.
func (b *Background) search(ctx context.Context, c challenge.Challenge, start, stride uint64) error {
	limit := b.params.Limits.MaxIterations
	batch := b.params.Limits.BatchSize
	nonce := start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimedTo := b.claimed.Add(batch)
		claimedFrom := claimedTo - batch
		if claimedFrom >= limit {
			return errIterationLimit
		}
		count := batch
		if claimedTo > limit {
			count = limit - claimedFrom
		}

		sol, next, hashed, found := scan(b.params.Hash, c, nonce, stride, count)
		b.computed.Add(hashed)
		if found {
			b.found.CompareAndSwap(nil, &sol)
			return errFound
		}
		nonce = next

		b.report.Do(func() {
			select {
			case b.events <- progressEvent(b.computed.Load(), c.Difficulty):
			default:
			}
		})
	}
}
