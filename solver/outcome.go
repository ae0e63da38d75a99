package solver

import (
	"errors"
	"fmt"

	"github.com/firasghr/powcaptcha/challenge"
)

var (
	// ErrSolverUnavailable means the background search could not be created
	// or crashed.  The orchestrator recovers by switching to the fallback.
	ErrSolverUnavailable = errors.New("background solver unavailable")

	// ErrSolveTimeout means the wall-clock budget ran out.
	ErrSolveTimeout = errors.New("solve timed out")

	// ErrSolveIterationLimit means the hash budget ran out.
	ErrSolveIterationLimit = errors.New("solve iteration limit reached")

	// ErrSolveRuntime means the search loop itself failed.
	ErrSolveRuntime = errors.New("solve runtime error")
)

// OutcomeKind tags the terminal result of a search.
type OutcomeKind int

const (
	OutcomeResult OutcomeKind = iota
	OutcomeTimeout
	OutcomeIterationLimitReached
	OutcomeWorkerUnavailable
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResult:
		return "result"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeIterationLimitReached:
		return "iteration_limit_reached"
	case OutcomeWorkerUnavailable:
		return "worker_unavailable"
	case OutcomeError:
		return "error"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the single terminal event of a search.
type Outcome struct {
	Kind OutcomeKind

	// Solution is set for OutcomeResult.
	Solution challenge.Solution

	// Reason describes OutcomeTimeout, OutcomeWorkerUnavailable and
	// OutcomeError.
	Reason string

	// Attempts is the number of hashes computed.
	Attempts uint64
}

// Err maps the outcome to one of the package's sentinel errors.  It returns
// nil for OutcomeResult.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeResult:
		return nil
	case OutcomeTimeout:
		return fmt.Errorf("%w: %s", ErrSolveTimeout, o.Reason)
	case OutcomeIterationLimitReached:
		return ErrSolveIterationLimit
	case OutcomeWorkerUnavailable:
		return fmt.Errorf("%w: %s", ErrSolverUnavailable, o.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrSolveRuntime, o.Reason)
	}
}

// Progress is a non-terminal report.
type Progress struct {
	Attempts uint64

	// Percent is the estimate from progress.Estimate, in [0, 95].
	Percent float64
}

// Event is either a progress report or, when Outcome is non-nil, the
// terminal outcome.  No events follow a terminal one.
type Event struct {
	Progress Progress
	Outcome  *Outcome
}

// Terminal reports whether ev ends the search.
func (ev Event) Terminal() bool { return ev.Outcome != nil }
