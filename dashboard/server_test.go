package dashboard_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/powcaptcha/dashboard"
	"github.com/firasghr/powcaptcha/hostpage"
	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/orchestrator"
	"github.com/firasghr/powcaptcha/widget"
)

type idleEngine struct{}

func (idleEngine) Start(context.Context, orchestrator.Listener) bool { return true }
func (idleEngine) Cancel()                                           {}

func newServer(t *testing.T) (*dashboard.Server, *metrics.Metrics, *hostpage.Bus, *httptest.Server) {
	t.Helper()
	m := metrics.NewMetrics()
	bus := hostpage.NewBus()
	s, err := dashboard.New(m, bus, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, m, bus, srv
}

func TestMetricsEndpoint(t *testing.T) {
	_, m, _, srv := newServer(t)
	m.IncrementStarted()
	m.IncrementStarted()
	m.AddHashes(42)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "powcaptcha_attempts_started_total 2")
	assert.Contains(t, string(body), "powcaptcha_hashes_total 42")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStatusEndpoint(t *testing.T) {
	s, m, _, srv := newServer(t)
	w := widget.New(idleEngine{}, widget.Config{ID: "w-1"})
	s.Track(w)
	w.Trigger(context.Background())
	m.IncrementVerifications()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var st dashboard.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.EqualValues(t, 1, st.Metrics.Verifications)
	assert.Positive(t, st.Goroutines)
	assert.Equal(t, []dashboard.WidgetStatus{{ID: "w-1", State: "verifying"}}, st.Widgets)
}

func TestMethods(t *testing.T) {
	_, _, _, srv := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/status", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	s, _, bus, srv := newServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Post(hostpage.NewMessage("w-1", hostpage.TypeSuccess, "completed", "tok_xyz")))

	r := bufio.NewReader(resp.Body)
	event, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: success\n", event)
	data, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data: "))

	var got hostpage.Message
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &got))
	assert.Equal(t, "tok_xyz", got.Token)
	assert.Equal(t, "w-1", got.WidgetID)

	cancel()
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s, err := dashboard.New(metrics.NewMetrics(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
