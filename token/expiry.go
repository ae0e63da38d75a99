package token

import (
	"sync/atomic"
	"time"
)

const (
	expiryArmed int32 = iota
	expiryFired
	expiryStopped
)

// Expiry is a single-shot timer.  Its callback runs at most once, and never
// after Stop has returned true.
type Expiry struct {
	state atomic.Int32
	timer *time.Timer
}

// Arm starts a timer that calls fn on its own goroutine after d.
func Arm(d time.Duration, fn func()) *Expiry {
	e := &Expiry{}
	e.timer = time.AfterFunc(d, func() {
		if e.state.CompareAndSwap(expiryArmed, expiryFired) {
			fn()
		}
	})
	return e
}

// Stop disarms the timer.  It returns true if this call prevented the
// callback from running.  Safe to call repeatedly and after firing.
func (e *Expiry) Stop() bool {
	if e == nil {
		return false
	}
	e.timer.Stop()
	return e.state.CompareAndSwap(expiryArmed, expiryStopped)
}

// Fired reports whether the callback has been started.
func (e *Expiry) Fired() bool {
	return e != nil && e.state.Load() == expiryFired
}
