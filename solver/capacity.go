package solver

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Capacity bounds how many background searches may exist at once across all
// widgets of a process.  When it is exhausted new background solvers fail
// with ErrSolverUnavailable and the orchestrator uses the fallback.
type Capacity struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
}

// NewCapacity returns a Capacity with n slots.  n <= 0 disables background
// searching entirely.
func NewCapacity(n int) *Capacity {
	size := int64(n)
	if size < 0 {
		size = 0
	}
	return &Capacity{sem: semaphore.NewWeighted(size), size: size}
}

// TryAcquire claims one slot without blocking.
func (c *Capacity) TryAcquire() bool {
	if c.size == 0 || !c.sem.TryAcquire(1) {
		return false
	}
	c.inUse.Add(1)
	return true
}

// Release returns a slot claimed by TryAcquire.
func (c *Capacity) Release() {
	c.inUse.Add(-1)
	c.sem.Release(1)
}

// InUse returns the number of claimed slots.
func (c *Capacity) InUse() int { return int(c.inUse.Load()) }

// Size returns the total number of slots.
func (c *Capacity) Size() int { return int(c.size) }
