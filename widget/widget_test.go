package widget_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/firasghr/powcaptcha/challenge"
	"github.com/firasghr/powcaptcha/hostpage"
	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/orchestrator"
	"github.com/firasghr/powcaptcha/solver"
	"github.com/firasghr/powcaptcha/token"
	"github.com/firasghr/powcaptcha/widget"
)

// inbox records host messages and observer updates.
type inbox struct {
	mu      sync.Mutex
	msgs    []hostpage.Message
	updates []widget.Update
}

func (in *inbox) Post(m hostpage.Message) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.msgs = append(in.msgs, m)
	return nil
}

func (in *inbox) OnUpdate(u widget.Update) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.updates = append(in.updates, u)
}

func (in *inbox) messages() []hostpage.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]hostpage.Message(nil), in.msgs...)
}

func (in *inbox) count(typ hostpage.MessageType) int {
	n := 0
	for _, m := range in.messages() {
		if m.Type == typ {
			n++
		}
	}
	return n
}

// fakeEngine hands the test each attempt's listener.
type fakeEngine struct {
	mu        sync.Mutex
	listeners []orchestrator.Listener
	busy      bool
	cancels   int
}

func (e *fakeEngine) Start(_ context.Context, l orchestrator.Listener) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return false
	}
	e.listeners = append(e.listeners, l)
	return true
}

func (e *fakeEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
}

func (e *fakeEngine) listener(t *testing.T, i int) orchestrator.Listener {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.Greater(t, len(e.listeners), i)
	return e.listeners[i]
}

func (e *fakeEngine) starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func newFake(t *testing.T) (*widget.Widget, *fakeEngine, *inbox, *metrics.Metrics) {
	t.Helper()
	eng := &fakeEngine{}
	in := &inbox{}
	m := metrics.NewMetrics()
	w := widget.New(eng, widget.Config{ID: "w-1", Notifier: in, Observer: in, Metrics: m})
	return w, eng, in, m
}

func testParams() solver.Params {
	p := solver.DefaultParams()
	p.Limits.BatchSize = 100
	return p
}

func TestWidget_CompletedThenExpires(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := orchestrator.NewMockChallengeClient(ctrl)
	client.EXPECT().RequestChallenge(gomock.Any()).Return(challenge.Challenge{Puzzle: "abc123", Difficulty: 1}, nil)
	client.EXPECT().VerifySolution(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sol challenge.Solution) (challenge.Receipt, error) {
			assert.Equal(t, "abc123", sol.Puzzle)
			return challenge.Receipt{Token: "tok_xyz", ExpiresIn: 300 * time.Millisecond}, nil
		})

	m := metrics.NewMetrics()
	orch := orchestrator.New(client, orchestrator.Config{Params: testParams(), Metrics: m})
	in := &inbox{}
	w := widget.New(orch, widget.Config{Notifier: in, Observer: in, Metrics: m})

	assert.Equal(t, widget.Verifying, w.Trigger(context.Background()))
	require.Eventually(t, func() bool { return w.State() == widget.Completed }, 5*time.Second, 5*time.Millisecond)

	tok, ok := w.Token()
	require.True(t, ok)
	assert.Equal(t, "tok_xyz", tok.Value)
	assert.Equal(t, 100.0, w.Progress())

	msgs := in.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, hostpage.NewMessage(w.ID(), hostpage.TypeSuccess, "completed", "tok_xyz"), msgs[0])

	// Completed ignores triggers until the token expires.
	assert.Equal(t, widget.Completed, w.Trigger(context.Background()))

	require.Eventually(t, func() bool { return w.State() == widget.Idle }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, in.count(hostpage.TypeExpired))
	assert.Len(t, in.messages(), 2)
	_, ok = w.Token()
	assert.False(t, ok)
	assert.EqualValues(t, 1, m.Snapshot().TokensExpired)
	for _, msg := range in.messages() {
		assert.NoError(t, msg.Validate())
	}
}

func TestWidget_IterationLimitFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := orchestrator.NewMockChallengeClient(ctrl)
	client.EXPECT().RequestChallenge(gomock.Any()).Return(challenge.Challenge{Puzzle: "abc123", Difficulty: 65}, nil)

	p := testParams()
	p.Limits.MaxIterations = 1000
	orch := orchestrator.New(client, orchestrator.Config{Params: p})
	in := &inbox{}
	w := widget.New(orch, widget.Config{ID: "w-2", Notifier: in})

	w.Trigger(context.Background())
	require.Eventually(t, func() bool { return w.State() == widget.Failed }, 5*time.Second, 5*time.Millisecond)

	msgs := in.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, hostpage.TypeFailure, msgs[0].Type)
	assert.Empty(t, msgs[0].Token)
	assert.ErrorIs(t, orch.Err(), solver.ErrSolveIterationLimit)

	// A failed widget goes back to Idle on the next trigger without retrying.
	assert.Equal(t, widget.Idle, w.Trigger(context.Background()))
	assert.Len(t, in.messages(), 1)
}

func TestWidget_VerifyingIgnoresTrigger(t *testing.T) {
	w, eng, _, _ := newFake(t)

	assert.Equal(t, widget.Verifying, w.Trigger(context.Background()))
	assert.Equal(t, widget.Verifying, w.Trigger(context.Background()))
	assert.Equal(t, 1, eng.starts())
}

func TestWidget_ProgressIsMonotonic(t *testing.T) {
	w, eng, in, _ := newFake(t)
	w.Trigger(context.Background())
	l := eng.listener(t, 0)

	l.OnProgress(20)
	l.OnProgress(10)
	l.OnProgress(45)
	assert.Equal(t, 45.0, w.Progress())

	in.mu.Lock()
	defer in.mu.Unlock()
	var seen []float64
	for _, u := range in.updates {
		seen = append(seen, u.Progress)
	}
	assert.Equal(t, []float64{0, 20, 45}, seen)
}

func TestWidget_ResetClearsExpiry(t *testing.T) {
	w, eng, in, m := newFake(t)
	w.Trigger(context.Background())
	eng.listener(t, 0).OnDone(token.New("tok", time.Now(), 50*time.Millisecond))
	require.Equal(t, widget.Completed, w.State())

	w.Reset()
	assert.Equal(t, widget.Idle, w.State())
	time.Sleep(120 * time.Millisecond)

	assert.Zero(t, in.count(hostpage.TypeExpired))
	assert.Zero(t, m.Snapshot().TokensExpired)
	assert.Zero(t, eng.cancels, "no attempt was in flight")
}

func TestWidget_ResetDuringVerifyingCancels(t *testing.T) {
	w, eng, in, _ := newFake(t)
	w.Trigger(context.Background())
	stale := eng.listener(t, 0)

	w.Reset()
	assert.Equal(t, 1, eng.cancels)

	w.Trigger(context.Background())
	stale.OnDone(token.New("old", time.Now(), time.Minute))
	stale.OnFailed(errors.New("old"))
	assert.Equal(t, widget.Verifying, w.State())
	assert.Empty(t, in.messages())

	eng.listener(t, 1).OnDone(token.New("new", time.Now(), time.Minute))
	tok, ok := w.Token()
	require.True(t, ok)
	assert.Equal(t, "new", tok.Value)
	w.Reset()
}

func TestWidget_EngineBusy(t *testing.T) {
	w, eng, _, _ := newFake(t)
	eng.busy = true

	assert.Equal(t, widget.Idle, w.Trigger(context.Background()))
	assert.Equal(t, widget.Idle, w.State())
}

func TestWidget_DefaultID(t *testing.T) {
	a := widget.New(&fakeEngine{}, widget.Config{})
	b := widget.New(&fakeEngine{}, widget.Config{})
	assert.Len(t, a.ID(), 36)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", widget.Idle.String())
	assert.Equal(t, "verifying", widget.Verifying.String())
	assert.Equal(t, "completed", widget.Completed.String())
	assert.Equal(t, "failed", widget.Failed.String())
	assert.Equal(t, "State(9)", widget.State(9).String())
}
