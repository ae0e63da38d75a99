// Package dashboard provides a small HTTP status server for running widgets.
//
// It exposes:
//   - GET /metrics     – Prometheus exposition of the process counters
//   - GET /api/status  – metrics snapshot plus the state of every tracked widget (JSON)
//   - GET /api/events  – SSE stream of host messages posted on the bus
//
// CORS is wide-open so a local page can use EventSource against it.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firasghr/powcaptcha/hostpage"
	"github.com/firasghr/powcaptcha/logger"
	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/widget"
)

// Namespace prefixes every exported metric.
const Namespace = "powcaptcha"

// WidgetStatus is one entry of /api/status.
type WidgetStatus struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

// Status is the /api/status payload.
type Status struct {
	Timestamp  int64            `json:"timestamp"`
	Goroutines int              `json:"goroutines"`
	Metrics    metrics.Snapshot `json:"metrics"`
	Widgets    []WidgetStatus   `json:"widgets"`
}

// Server serves the dashboard endpoints.
type Server struct {
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	bus      *hostpage.Bus
	log      *logger.Logger

	widgetsMu sync.RWMutex
	widgets   []*widget.Widget

	// Event stream subscribers.  The server holds a single bus handler and
	// fans out from there.
	subMu sync.Mutex
	subs  map[chan hostpage.Message]struct{}

	mux *http.ServeMux
}

// New returns a Server exporting m.  bus may be nil, in which case the event
// stream stays silent.
func New(m *metrics.Metrics, bus *hostpage.Bus, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		metrics:  m,
		registry: prometheus.NewRegistry(),
		bus:      bus,
		log:      log,
		subs:     make(map[chan hostpage.Message]struct{}),
		mux:      http.NewServeMux(),
	}
	if err := s.registry.Register(metrics.NewCollector(m, Namespace)); err != nil {
		return nil, fmt.Errorf("dashboard: register collector: %w", err)
	}
	if err := s.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("dashboard: register go collector: %w", err)
	}
	if bus != nil {
		if err := bus.Subscribe(s.broadcast); err != nil {
			return nil, fmt.Errorf("dashboard: subscribe: %w", err)
		}
	}
	s.registerRoutes()
	return s, nil
}

// Track adds w to /api/status.
func (s *Server) Track(w *widget.Widget) {
	s.widgetsMu.Lock()
	s.widgets = append(s.widgets, w)
	s.widgetsMu.Unlock()
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
//
// WriteTimeout is disabled because the event stream is long-lived.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("dashboard listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// Close detaches the server from the bus.
func (s *Server) Close() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Unsubscribe(s.broadcast)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/api/status", s.withCORS(s.handleStatus))
	s.mux.HandleFunc("/api/events", s.withCORS(s.handleEvents))
}

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// Snapshot returns the current status.
func (s *Server) Snapshot() Status {
	st := Status{
		Timestamp:  time.Now().UnixMilli(),
		Goroutines: runtime.NumGoroutine(),
		Metrics:    s.metrics.Snapshot(),
		Widgets:    []WidgetStatus{},
	}
	s.widgetsMu.RLock()
	defer s.widgetsMu.RUnlock()
	for _, w := range s.widgets {
		st.Widgets = append(st.Widgets, WidgetStatus{
			ID:       w.ID(),
			State:    w.State().String(),
			Progress: w.Progress(),
		})
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		s.log.Error("encode status", "error", err)
	}
}

// broadcast runs on the posting goroutine; slow subscribers lose messages.
func (s *Server) broadcast(m hostpage.Message) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan hostpage.Message, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	defer func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ch:
			if err := sseWrite(w, string(m.Type), m); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Subscribers returns the number of open event streams.
func (s *Server) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func sseWrite(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
