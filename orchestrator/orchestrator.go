// Package orchestrator drives one solve attempt at a time: it fetches a
// challenge, runs a solver on it, and exchanges the solution for a token.
//
// The background solver is preferred.  When it cannot be created, or its
// goroutines crash mid-search, the same challenge is handed to the fallback
// solver; a new puzzle is never requested for that reason.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/firasghr/powcaptcha/challenge"
	"github.com/firasghr/powcaptcha/logger"
	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/progress"
	"github.com/firasghr/powcaptcha/solver"
	"github.com/firasghr/powcaptcha/token"
)

var (
	// ErrAttemptInFlight is returned by Run while another attempt is active.
	ErrAttemptInFlight = errors.New("orchestrator: attempt already in flight")

	// ErrCanceled is returned by Run when Cancel ended the attempt.
	ErrCanceled = errors.New("orchestrator: attempt canceled")
)

// Phase is the position of the current attempt.
type Phase int

const (
	NotStarted Phase = iota
	RequestingChallenge
	Solving
	Verifying
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case RequestingChallenge:
		return "requesting_challenge"
	case Solving:
		return "solving"
	case Verifying:
		return "verifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// InFlight reports whether p belongs to a running attempt.
func (p Phase) InFlight() bool {
	return p == RequestingChallenge || p == Solving || p == Verifying
}

// Config holds the collaborators of an Orchestrator.  Zero fields get
// defaults.
type Config struct {
	// Params is shared by both solver variants.
	Params solver.Params

	// Background creates the preferred solver.  Defaults to an unbounded
	// solver.BackgroundFactory.
	Background solver.Factory

	// Fallback creates the substitute solver.  Defaults to
	// solver.FallbackFactory.
	Fallback solver.Factory

	// TokenLifetime is used when neither the service nor the token states
	// one.  Defaults to token.DefaultLifetime.
	TokenLifetime time.Duration

	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	client ChallengeClient
	cfg    Config
	log    *logger.Logger

	mu      sync.Mutex
	phase   Phase
	gen     uint64
	cancel  context.CancelFunc
	active  solver.Solver
	tok     token.Token
	lastErr error

	// notifyMu serialises listener calls with Cancel.
	notifyMu sync.Mutex
}

// New returns an idle Orchestrator.
func New(client ChallengeClient, cfg Config) *Orchestrator {
	if cfg.Background == nil {
		cfg.Background = solver.BackgroundFactory(nil)
	}
	if cfg.Fallback == nil {
		cfg.Fallback = solver.FallbackFactory
	}
	if cfg.TokenLifetime <= 0 {
		cfg.TokenLifetime = token.DefaultLifetime
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{client: client, cfg: cfg, log: cfg.Logger}
}

// Phase returns the phase of the current or last attempt.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Token returns the token of the last attempt if it reached Done.
func (o *Orchestrator) Token() (token.Token, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tok, o.phase == Done
}

// Err returns the failure of the last attempt if it reached Failed.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != Failed {
		return nil
	}
	return o.lastErr
}

// Start begins an attempt on a new goroutine and returns true, or returns
// false without doing anything if an attempt is already in flight.
func (o *Orchestrator) Start(ctx context.Context, l Listener) bool {
	gen, actx, ok := o.begin(ctx)
	if !ok {
		return false
	}
	go func() { _, _ = o.attempt(actx, gen, l) }()
	return true
}

// Run performs an attempt on the calling goroutine.  l may be nil.
func (o *Orchestrator) Run(ctx context.Context, l Listener) (token.Token, error) {
	gen, actx, ok := o.begin(ctx)
	if !ok {
		return token.Token{}, ErrAttemptInFlight
	}
	return o.attempt(actx, gen, l)
}

// Cancel abandons the current attempt: the active solver is disposed, the
// network call in progress is aborted and the phase returns to NotStarted.
// Once Cancel returns the abandoned attempt makes no further listener calls.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	wasInFlight := o.phase.InFlight()
	o.gen++
	o.phase = NotStarted
	o.tok = token.Token{}
	o.lastErr = nil
	cancel, active := o.cancel, o.active
	o.cancel, o.active = nil, nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active != nil {
		active.Dispose()
	}
	// Wait out a listener call that passed its generation check.
	o.notifyMu.Lock()
	o.notifyMu.Unlock() //nolint:staticcheck // barrier

	if wasInFlight {
		o.cfg.Metrics.IncrementCanceled()
		o.log.Info("attempt canceled")
	}
}

func (o *Orchestrator) begin(ctx context.Context) (uint64, context.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase.InFlight() {
		return 0, nil, false
	}
	o.gen++
	o.phase = RequestingChallenge
	o.tok = token.Token{}
	o.lastErr = nil
	actx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.cfg.Metrics.IncrementStarted()
	return o.gen, actx, true
}

func (o *Orchestrator) attempt(ctx context.Context, gen uint64, l Listener) (token.Token, error) {
	if l == nil {
		l = nopListener{}
	}
	log := o.log.With("attempt", gen)

	ch, err := o.client.RequestChallenge(ctx)
	if err != nil {
		return o.fail(gen, l, log, err)
	}
	log.Debug("challenge received", "difficulty", ch.Difficulty)
	if !o.advance(gen, Solving) {
		return token.Token{}, ErrCanceled
	}

	sol, err := o.solve(ctx, gen, ch, l, log)
	if err != nil {
		return o.fail(gen, l, log, err)
	}
	if !o.advance(gen, Verifying) {
		return token.Token{}, ErrCanceled
	}

	o.cfg.Metrics.IncrementVerifications()
	receipt, err := o.client.VerifySolution(ctx, sol)
	if err != nil {
		return o.fail(gen, l, log, err)
	}

	now := o.cfg.Now()
	tok := token.New(receipt.Token, now, token.ResolveLifetime(receipt.Token, receipt.ExpiresIn, o.cfg.TokenLifetime, now))
	return o.succeed(gen, l, log, tok)
}

// solve runs the background solver, substituting the fallback when the
// background one is unavailable, and returns the solution or the terminal
// error.  Both solvers draw on one time and iteration budget.
func (o *Orchestrator) solve(ctx context.Context, gen uint64, ch challenge.Challenge, l Listener, log *logger.Logger) (challenge.Solution, error) {
	var tracker progress.Tracker
	fallback := false
	started := time.Now()
	var used uint64

	s, err := o.cfg.Background(o.cfg.Params)
	if err != nil {
		log.Warn("background solver unavailable, using fallback", "error", err)
		if s, err = o.newFallback(o.cfg.Params); err != nil {
			return challenge.Solution{}, err
		}
		fallback = true
	}

	for {
		if !o.setActive(gen, s) {
			s.Dispose()
			return challenge.Solution{}, ErrCanceled
		}
		s.Start(ch)
		out, err := o.drive(ctx, gen, s, &tracker, l)
		s.Dispose()
		o.setActive(gen, nil)
		if err != nil {
			return challenge.Solution{}, err
		}

		used += out.Attempts
		o.cfg.Metrics.AddHashes(out.Attempts)
		log.Info("solve finished",
			"outcome", out.Kind.String(),
			"attempts", out.Attempts,
			"difficulty", ch.Difficulty,
			"fallback", fallback,
		)

		switch out.Kind {
		case solver.OutcomeResult:
			return out.Solution, nil
		case solver.OutcomeWorkerUnavailable:
			if fallback {
				return challenge.Solution{}, fmt.Errorf("%w: fallback reported %s", solver.ErrSolveRuntime, out.Reason)
			}
			log.Warn("background solver crashed, retrying challenge with fallback", "reason", out.Reason)
			p, err := remaining(o.cfg.Params, time.Since(started), used)
			if err != nil {
				return challenge.Solution{}, err
			}
			if s, err = o.newFallback(p); err != nil {
				return challenge.Solution{}, err
			}
			fallback = true
		case solver.OutcomeTimeout:
			return challenge.Solution{}, timeoutErr(o.cfg.Params)
		default:
			return challenge.Solution{}, out.Err()
		}
	}
}

// remaining returns p with its limits reduced by what the attempt has
// already spent, or the error of the exhausted bound.
func remaining(p solver.Params, elapsed time.Duration, used uint64) (solver.Params, error) {
	if elapsed >= p.Limits.MaxDuration {
		return p, timeoutErr(p)
	}
	if used >= p.Limits.MaxIterations {
		return p, solver.ErrSolveIterationLimit
	}
	p.Limits.MaxDuration -= elapsed
	p.Limits.MaxIterations -= used
	return p, nil
}

// timeoutErr names the whole budget of the attempt.
func timeoutErr(p solver.Params) error {
	return solver.Outcome{
		Kind:   solver.OutcomeTimeout,
		Reason: fmt.Sprintf("no solution within %s", p.Limits.MaxDuration),
	}.Err()
}

func (o *Orchestrator) newFallback(p solver.Params) (solver.Solver, error) {
	s, err := o.cfg.Fallback(p)
	if err != nil {
		return nil, fmt.Errorf("%w: create fallback solver: %w", solver.ErrSolveRuntime, err)
	}
	o.cfg.Metrics.IncrementFallback()
	return s, nil
}

// drive pumps s until its terminal outcome.
func (o *Orchestrator) drive(ctx context.Context, gen uint64, s solver.Solver, tracker *progress.Tracker, l Listener) (solver.Outcome, error) {
	for {
		ev, ok := s.Next(ctx)
		if !ok {
			if err := ctx.Err(); err != nil && o.current(gen) {
				return solver.Outcome{}, err
			}
			return solver.Outcome{}, ErrCanceled
		}
		if ev.Terminal() {
			return *ev.Outcome, nil
		}
		before := tracker.Value()
		if p := tracker.Observe(ev.Progress.Percent); p > before {
			o.notify(gen, func() { l.OnProgress(p) })
		}
	}
}

func (o *Orchestrator) succeed(gen uint64, l Listener, log *logger.Logger, tok token.Token) (token.Token, error) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return token.Token{}, ErrCanceled
	}
	o.phase = Done
	o.tok = tok
	o.release()
	o.mu.Unlock()

	o.cfg.Metrics.IncrementSucceeded()
	log.Info("attempt done", "token_lifetime", tok.Lifetime().String())
	o.notify(gen, func() {
		l.OnProgress(progress.Complete)
		l.OnDone(tok)
	})
	return tok, nil
}

func (o *Orchestrator) fail(gen uint64, l Listener, log *logger.Logger, err error) (token.Token, error) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return token.Token{}, ErrCanceled
	}
	o.phase = Failed
	o.lastErr = err
	o.release()
	o.mu.Unlock()

	o.cfg.Metrics.IncrementFailed()
	log.Warn("attempt failed", "error", err)
	o.notify(gen, func() { l.OnFailed(err) })
	return token.Token{}, err
}

// release drops the attempt context.  Caller holds mu.
func (o *Orchestrator) release() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) advance(gen uint64, p Phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return false
	}
	o.phase = p
	return true
}

func (o *Orchestrator) setActive(gen uint64, s solver.Solver) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return false
	}
	o.active = s
	return true
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// notify runs fn unless the attempt has been superseded.
func (o *Orchestrator) notify(gen uint64, fn func()) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	if o.current(gen) {
		fn()
	}
}

type nopListener struct{}

func (nopListener) OnProgress(float64) {}
func (nopListener) OnDone(token.Token) {}
func (nopListener) OnFailed(error)     {}
