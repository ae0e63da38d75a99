// Package solver runs the proof-of-work search.
//
// Two variants implement Solver.  Background searches on its own goroutines
// and is the normal path.  Fallback searches in slices on whichever goroutine
// calls Next, and is used when a background search cannot be created or
// crashes.  Both are driven the same way:
//
//	s.Start(ch)
//	for {
//		ev, ok := s.Next(ctx)
//		if !ok || ev.Terminal() {
//			break
//		}
//	}
//	s.Dispose()
//
// A search emits zero or more progress events followed by exactly one
// terminal Outcome.  After Dispose returns nothing more is delivered.
package solver

import (
	"context"

	"github.com/firasghr/powcaptcha/challenge"
)

// Solver is one single-use search.
type Solver interface {
	// Start begins searching for c.  Calls after the first are ignored.
	Start(c challenge.Challenge)

	// Next blocks until the next event.  It returns false once the search
	// has been disposed, has already delivered its terminal event, or ctx
	// is done.
	Next(ctx context.Context) (Event, bool)

	// Dispose stops the search and releases its resources.  Idempotent and
	// safe after completion.
	Dispose()
}

// Factory creates a solver from shared params.
type Factory func(Params) (Solver, error)

// BackgroundFactory returns a Factory of background solvers limited by
// capacity.  A nil capacity is unbounded.
func BackgroundFactory(capacity *Capacity) Factory {
	return func(p Params) (Solver, error) {
		b, err := NewBackground(p, capacity)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// FallbackFactory creates fallback solvers.
func FallbackFactory(p Params) (Solver, error) {
	f, err := NewFallback(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}
