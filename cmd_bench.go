package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/widget"
	"github.com/firasghr/powcaptcha/worker"
)

var (
	benchWidgets     int
	benchConcurrency int
)

// benchReport is printed when bench finishes.
type benchReport struct {
	Widgets     int              `json:"widgets"`
	Concurrency int              `json:"concurrency"`
	Completed   uint64           `json:"completed"`
	Failed      uint64           `json:"failed"`
	Elapsed     string           `json:"elapsed"`
	Metrics     metrics.Snapshot `json:"metrics"`
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run many widgets concurrently and report metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if benchWidgets <= 0 {
			return errors.New("--widgets must be positive")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := loadEngine()
		if err != nil {
			return err
		}
		defer func() { _ = e.log.Sync() }()

		start := time.Now()
		pool := worker.NewPool(ctx, benchConcurrency)
		for i := 0; i < benchWidgets; i++ {
			if err := pool.Submit(ctx, func(ctx context.Context) error { return runWidget(ctx, e) }); err != nil {
				e.log.Warn("submit stopped", "error", err)
				break
			}
		}
		if err := pool.Stop(); err != nil {
			e.log.Warn("some widgets failed", "error", err)
		}

		completed, failed := pool.Stats()
		report := benchReport{
			Widgets:     benchWidgets,
			Concurrency: pool.Size(),
			Completed:   completed,
			Failed:      failed,
			Elapsed:     time.Since(start).String(),
			Metrics:     e.metrics.Snapshot(),
		}
		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")
		return out.Encode(report)
	},
}

func init() {
	benchCmd.Flags().IntVarP(&benchWidgets, "widgets", "n", 10, "number of widgets to run")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 4, "widgets running at once")
}

// runWidget triggers one widget and waits until it completes or fails.
func runWidget(ctx context.Context, e *engine) error {
	orch, err := e.newOrchestrator()
	if err != nil {
		return err
	}
	done := make(chan widget.State, 1)
	w := widget.New(orch, widget.Config{
		Logger:  e.log.With("component", "widget"),
		Metrics: e.metrics,
		Observer: widget.ObserverFunc(func(u widget.Update) {
			if u.State == widget.Completed || u.State == widget.Failed {
				select {
				case done <- u.State:
				default:
				}
			}
		}),
	})
	// The token is not used, so its expiry timer is dropped with Reset.
	defer w.Reset()

	w.Trigger(ctx)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s := <-done:
		if s == widget.Failed {
			return fmt.Errorf("widget %s failed", w.ID())
		}
		return nil
	}
}
