// Package progress turns raw search attempt counts into a display value.
//
// A brute-force search is memoryless: the chance of the next hash matching is
// the same no matter how many hashes came before it, so there is no true
// "percent done".  Estimate instead compares the attempts made with the
// expected number of attempts for the difficulty and eases the ratio with a
// square root, so early progress moves quickly and late progress slows down.
// The value is capped at MaxEstimate; 100 is reserved for a verified solution.
package progress

import (
	"math"
	"sync"

	"github.com/firasghr/powcaptcha/hasher"
)

const (
	// MaxEstimate is the ceiling for an unconfirmed search.
	MaxEstimate = 95.0

	// Complete is the value shown once the solution has been verified.
	Complete = 100.0
)

// ExpectedAttempts returns the mean number of hashes needed to find a digest
// with difficulty leading zero characters over the hasher's alphabet.
func ExpectedAttempts(difficulty int) float64 {
	if difficulty < 0 {
		difficulty = 0
	}
	return math.Pow(hasher.Alphabet, float64(difficulty))
}

// Estimate maps attempts at the given difficulty to a value in [0, 95].
// For a fixed difficulty it never decreases as attempts grow.
func Estimate(attempts uint64, difficulty int) float64 {
	if attempts == 0 {
		return 0
	}
	ratio := float64(attempts) / ExpectedAttempts(difficulty)
	if math.IsNaN(ratio) || ratio <= 0 {
		return 0
	}
	return math.Min(MaxEstimate, math.Sqrt(ratio)*100)
}

// Tracker keeps the progress of one solve attempt monotonic.  Progress events
// from several search goroutines may arrive out of order; Observe never lets
// the reported value go backwards.  Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	current float64
}

// Observe records p and returns the value to display, which is the maximum
// seen so far clamped to [0, MaxEstimate].
func (t *Tracker) Observe(p float64) float64 {
	if p > MaxEstimate {
		p = MaxEstimate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if p > t.current {
		t.current = p
	}
	return t.current
}

// Complete marks the attempt as verified and returns 100.
func (t *Tracker) Complete() float64 {
	t.mu.Lock()
	t.current = Complete
	t.mu.Unlock()
	return Complete
}

// Value returns the current display value.
func (t *Tracker) Value() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Reset starts a new attempt at 0.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = 0
	t.mu.Unlock()
}
