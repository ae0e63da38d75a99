// Package widget is the visible lifecycle of one verification widget:
//
//	Idle --Trigger--> Verifying --done--> Completed --expiry--> Idle
//	                      |
//	                      +----failed---> Failed --Trigger--> Idle
//
// Verifying and Completed ignore Trigger.  Reset returns to Idle from any
// state, abandoning the attempt and the token.
//
// The hosting page hears about three transitions only: Completed (with the
// token), Failed, and the expiry of a token.  Every transition, and every
// progress change, is also reported to an optional Observer.
package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firasghr/powcaptcha/hostpage"
	"github.com/firasghr/powcaptcha/logger"
	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/orchestrator"
	"github.com/firasghr/powcaptcha/token"
)

// State is the visible widget state.
type State int

const (
	Idle State = iota
	Verifying
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Verifying:
		return "verifying"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Engine runs solve attempts.  *orchestrator.Orchestrator implements it.
type Engine interface {
	Start(ctx context.Context, l orchestrator.Listener) bool
	Cancel()
}

// Update describes the widget after a change.
type Update struct {
	WidgetID string
	State    State
	Progress float64
	HasToken bool
}

// Observer is the rendering side of the widget.
type Observer interface {
	OnUpdate(u Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

func (f ObserverFunc) OnUpdate(u Update) { f(u) }

// Config holds optional collaborators.
type Config struct {
	// ID identifies the widget to the hosting page.  Defaults to a random
	// UUID.
	ID string

	// Notifier receives host messages.  It must not call back into the
	// widget synchronously.
	Notifier hostpage.Notifier

	Observer Observer
	Logger   *logger.Logger
	Metrics  *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Widget is safe for concurrent use.
type Widget struct {
	id       string
	engine   Engine
	notifier hostpage.Notifier
	observer Observer
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu       sync.Mutex
	state    State
	progress float64
	tok      token.Token
	expiry   *token.Expiry
	// epoch changes on every transition that abandons an attempt or a
	// token, so callbacks from the abandoned one are ignored.
	epoch uint64

	// emitMu keeps notifications in transition order.
	emitMu sync.Mutex
}

// New returns an Idle widget driving engine.
func New(engine Engine, cfg Config) *Widget {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Widget{
		id:       cfg.ID,
		engine:   engine,
		notifier: cfg.Notifier,
		observer: cfg.Observer,
		log:      cfg.Logger.With("widget_id", cfg.ID),
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
}

// ID returns the widget identifier.
func (w *Widget) ID() string { return w.id }

// State returns the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Progress returns the displayed progress in [0, 100].
func (w *Widget) Progress() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}

// Token returns the current token while Completed.
func (w *Widget) Token() (token.Token, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tok, w.state == Completed
}

// Trigger handles a user interaction or programmatic trigger and returns
// the resulting state.  From Idle it starts an attempt bound to ctx; from
// Failed it returns to Idle without retrying; otherwise it does nothing.
func (w *Widget) Trigger(ctx context.Context) State {
	w.mu.Lock()
	switch w.state {
	case Verifying, Completed:
		s := w.state
		w.mu.Unlock()
		w.log.Debug("trigger ignored", "state", s.String())
		return s
	case Failed:
		w.epoch++
		w.state = Idle
		w.progress = 0
		w.emitAndUnlock(nil)
		return Idle
	}

	w.epoch++
	epoch := w.epoch
	w.state = Verifying
	w.progress = 0
	w.emitAndUnlock(nil)

	if !w.engine.Start(ctx, &attempt{w: w, epoch: epoch}) {
		// The engine is busy with an attempt this widget no longer owns.
		w.mu.Lock()
		if w.epoch != epoch {
			w.mu.Unlock()
			return w.State()
		}
		w.log.Warn("engine busy, trigger dropped")
		w.epoch++
		w.state = Idle
		w.emitAndUnlock(nil)
		return Idle
	}
	return Verifying
}

// Reset is an explicit external dismiss: the attempt in flight is
// abandoned, the token and its expiry timer are cleared, and the widget
// returns to Idle.  The hosting page is not notified.
func (w *Widget) Reset() {
	w.mu.Lock()
	wasVerifying := w.state == Verifying
	w.epoch++
	w.expiry.Stop()
	w.expiry = nil
	w.tok = token.Token{}
	w.state = Idle
	w.progress = 0
	w.emitAndUnlock(nil)

	if wasVerifying {
		w.engine.Cancel()
	}
}

// expire runs on the expiry timer's goroutine.
func (w *Widget) expire(epoch uint64) {
	w.mu.Lock()
	if w.epoch != epoch || w.state != Completed {
		w.mu.Unlock()
		return
	}
	w.epoch++
	w.expiry = nil
	w.tok = token.Token{}
	w.state = Idle
	w.progress = 0
	w.metrics.IncrementExpired()
	w.log.Info("token expired")
	msg := hostpage.NewMessage(w.id, hostpage.TypeExpired, Idle.String(), "")
	w.emitAndUnlock(&msg)
}

// emitAndUnlock snapshots the widget, releases mu and delivers the host
// message, if any, and the observer update.  Caller holds mu.
func (w *Widget) emitAndUnlock(msg *hostpage.Message) {
	u := Update{
		WidgetID: w.id,
		State:    w.state,
		Progress: w.progress,
		HasToken: !w.tok.IsZero(),
	}
	w.emitMu.Lock()
	w.mu.Unlock()
	defer w.emitMu.Unlock()

	if msg != nil && w.notifier != nil {
		if err := w.notifier.Post(*msg); err != nil {
			w.log.Error("host notification failed", "type", string(msg.Type), "error", err)
		}
	}
	if w.observer != nil {
		w.observer.OnUpdate(u)
	}
}

// attempt is the orchestrator listener for one Trigger.
type attempt struct {
	w     *Widget
	epoch uint64
}

func (a *attempt) OnProgress(p float64) {
	w := a.w
	w.mu.Lock()
	if w.epoch != a.epoch || w.state != Verifying || p <= w.progress {
		w.mu.Unlock()
		return
	}
	w.progress = p
	w.emitAndUnlock(nil)
}

func (a *attempt) OnDone(tok token.Token) {
	w := a.w
	w.mu.Lock()
	if w.epoch != a.epoch || w.state != Verifying {
		w.mu.Unlock()
		return
	}
	w.state = Completed
	w.progress = 100
	w.tok = tok
	epoch := w.epoch
	w.expiry = token.Arm(tok.Remaining(w.now()), func() { w.expire(epoch) })
	w.log.Info("verification completed", "expires_in", tok.Remaining(w.now()).String())
	msg := hostpage.NewMessage(w.id, hostpage.TypeSuccess, Completed.String(), tok.Value)
	w.emitAndUnlock(&msg)
}

func (a *attempt) OnFailed(err error) {
	w := a.w
	w.mu.Lock()
	if w.epoch != a.epoch || w.state != Verifying {
		w.mu.Unlock()
		return
	}
	w.state = Failed
	w.log.Warn("verification failed", "error", err)
	msg := hostpage.NewMessage(w.id, hostpage.TypeFailure, Failed.String(), "")
	w.emitAndUnlock(&msg)
}
