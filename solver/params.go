package solver

import (
	"errors"
	"fmt"
	"time"

	"github.com/firasghr/powcaptcha/hasher"
)

// Default search bounds.
const (
	DefaultMaxIterations uint64 = 100_000_000
	DefaultMaxDuration          = 5 * time.Minute
	DefaultBatchSize     uint64 = 10_000
)

// Limits bound one search.  Both solver variants read them from the same
// Params value, so their budgets cannot drift apart.
type Limits struct {
	// MaxIterations is the total number of hashes one attempt may compute.
	MaxIterations uint64

	// MaxDuration is the wall-clock budget of one attempt.
	MaxDuration time.Duration

	// BatchSize is how many hashes run between progress reports, and for
	// the fallback between yields.
	BatchSize uint64
}

// DefaultLimits returns the standard bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations: DefaultMaxIterations,
		MaxDuration:   DefaultMaxDuration,
		BatchSize:     DefaultBatchSize,
	}
}

// Params is everything a solver needs besides the challenge itself.
type Params struct {
	Limits Limits

	// Workers is the number of background search goroutines.  The fallback
	// always searches on one goroutine.  Zero means one.
	Workers int

	// Hash is the digest function.  Nil means hasher.Digest.
	Hash hasher.Func
}

// DefaultParams returns Params with DefaultLimits, one worker and SHA-256.
func DefaultParams() Params {
	return Params{Limits: DefaultLimits(), Workers: 1, Hash: hasher.Digest}
}

// Validate reports whether p can drive a search.
func (p Params) Validate() error {
	var errs []error
	if p.Limits.MaxIterations == 0 {
		errs = append(errs, errors.New("max iterations must be positive"))
	}
	if p.Limits.MaxDuration <= 0 {
		errs = append(errs, errors.New("max duration must be positive"))
	}
	if p.Limits.BatchSize == 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if p.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", p.Workers))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("solver: invalid params: %w", err)
	}
	return nil
}

func (p Params) normalized() Params {
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.Hash == nil {
		p.Hash = hasher.Digest
	}
	return p
}
