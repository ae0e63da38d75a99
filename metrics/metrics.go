// Package metrics provides lock-free counters for solve attempts using
// atomic operations so they impose minimal overhead on the search path.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks aggregate statistics for every widget in the process.
//
// Fields are uint64 and accessed only through sync/atomic.
type Metrics struct {
	// AttemptsStarted counts solve attempts that passed the in-flight check.
	AttemptsStarted uint64

	// AttemptsSucceeded counts attempts that ended with a token.
	AttemptsSucceeded uint64

	// AttemptsFailed counts attempts that ended in the Failed phase.
	AttemptsFailed uint64

	// AttemptsCanceled counts attempts abandoned by Cancel.
	AttemptsCanceled uint64

	// FallbackSolves counts attempts that used the fallback solver.
	FallbackSolves uint64

	// HashesComputed is the total number of digests computed.
	HashesComputed uint64

	// Verifications counts VerifySolution calls.
	Verifications uint64

	// TokensExpired counts tokens invalidated by the expiry timer.
	TokensExpired uint64

	startTime time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	AttemptsStarted   uint64  `json:"attempts_started"`
	AttemptsSucceeded uint64  `json:"attempts_succeeded"`
	AttemptsFailed    uint64  `json:"attempts_failed"`
	AttemptsCanceled  uint64  `json:"attempts_canceled"`
	FallbackSolves    uint64  `json:"fallback_solves"`
	HashesComputed    uint64  `json:"hashes_computed"`
	Verifications     uint64  `json:"verifications"`
	TokensExpired     uint64  `json:"tokens_expired"`
	HashesPerSecond   float64 `json:"hashes_per_second"`
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementStarted() {
	if m != nil {
		atomic.AddUint64(&m.AttemptsStarted, 1)
	}
}

func (m *Metrics) IncrementSucceeded() {
	if m != nil {
		atomic.AddUint64(&m.AttemptsSucceeded, 1)
	}
}

func (m *Metrics) IncrementFailed() {
	if m != nil {
		atomic.AddUint64(&m.AttemptsFailed, 1)
	}
}

func (m *Metrics) IncrementCanceled() {
	if m != nil {
		atomic.AddUint64(&m.AttemptsCanceled, 1)
	}
}

func (m *Metrics) IncrementFallback() {
	if m != nil {
		atomic.AddUint64(&m.FallbackSolves, 1)
	}
}

func (m *Metrics) IncrementVerifications() {
	if m != nil {
		atomic.AddUint64(&m.Verifications, 1)
	}
}

func (m *Metrics) IncrementExpired() {
	if m != nil {
		atomic.AddUint64(&m.TokensExpired, 1)
	}
}

// AddHashes adds n to the hash counter.
func (m *Metrics) AddHashes(n uint64) {
	if m != nil {
		atomic.AddUint64(&m.HashesComputed, n)
	}
}

// HashesPerSecond returns the average hash rate since creation, or 0 if no
// time has elapsed.
func (m *Metrics) HashesPerSecond() float64 {
	if m == nil {
		return 0
	}
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.HashesComputed)) / elapsed
}

// Snapshot returns a copy of the counters.  The loads are independent, so
// the copy may be slightly inconsistent under concurrent updates.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		AttemptsStarted:   atomic.LoadUint64(&m.AttemptsStarted),
		AttemptsSucceeded: atomic.LoadUint64(&m.AttemptsSucceeded),
		AttemptsFailed:    atomic.LoadUint64(&m.AttemptsFailed),
		AttemptsCanceled:  atomic.LoadUint64(&m.AttemptsCanceled),
		FallbackSolves:    atomic.LoadUint64(&m.FallbackSolves),
		HashesComputed:    atomic.LoadUint64(&m.HashesComputed),
		Verifications:     atomic.LoadUint64(&m.Verifications),
		TokensExpired:     atomic.LoadUint64(&m.TokensExpired),
		HashesPerSecond:   m.HashesPerSecond(),
	}
}
