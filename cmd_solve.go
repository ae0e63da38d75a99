package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/powcaptcha/dashboard"
	"github.com/firasghr/powcaptcha/hostpage"
	"github.com/firasghr/powcaptcha/widget"
)

var (
	solveDashboard  string
	solveHostScript string
	solveHold       bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run one widget and print the issued token",
	Long: "Triggers a single widget against the configured service, prints the " +
		"host message carrying the token, and optionally holds until the token expires.",
	Args: cobra.NoArgs,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&solveDashboard, "dashboard", "", "serve the status dashboard on this address (e.g. :8080)")
	solveCmd.Flags().StringVar(&solveHostScript, "host-script", "", "JavaScript file run as the hosting page; receives host messages")
	solveCmd.Flags().BoolVar(&solveHold, "hold", false, "keep running until the token expires")
}

func runSolve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := loadEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	bus := hostpage.NewBus()
	notifier := hostpage.Multi{bus}
	var host *hostpage.ScriptHost
	if solveHostScript != "" {
		src, err := os.ReadFile(solveHostScript) // #nosec G304 – operator-provided script
		if err != nil {
			return fmt.Errorf("read host script: %w", err)
		}
		if host, err = hostpage.NewScriptHost(string(src), ""); err != nil {
			return err
		}
		notifier = append(notifier, host)
	}

	// Buffered so the widget never blocks on this subscriber.
	msgs := make(chan hostpage.Message, 4)
	if err := bus.Subscribe(func(m hostpage.Message) {
		select {
		case msgs <- m:
		default:
		}
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	orch, err := e.newOrchestrator()
	if err != nil {
		return err
	}
	w := widget.New(orch, widget.Config{
		Notifier: notifier,
		Logger:   e.log.With("component", "widget"),
		Metrics:  e.metrics,
	})

	if solveDashboard != "" {
		dash, err := dashboard.New(e.metrics, bus, e.log.With("component", "dashboard"))
		if err != nil {
			return err
		}
		defer func() { _ = dash.Close() }()
		dash.Track(w)
		go func() {
			if err := dash.ListenAndServe(ctx, solveDashboard); err != nil {
				e.log.Error("dashboard stopped", "error", err)
			}
		}()
	}

	start := time.Now()
	w.Trigger(ctx)

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	for {
		select {
		case <-ctx.Done():
			w.Reset()
			return ctx.Err()
		case m := <-msgs:
			switch m.Type {
			case hostpage.TypeSuccess:
				e.log.Info("token issued", "elapsed", time.Since(start).String())
				if err := out.Encode(m); err != nil {
					return err
				}
				if host != nil {
					if v, err := host.Eval("window.powcaptchaToken"); err == nil {
						e.log.Debug("host page token", "set", v == m.Token)
					}
				}
				if !solveHold {
					w.Reset()
					return nil
				}
			case hostpage.TypeFailure:
				_ = out.Encode(m)
				return fmt.Errorf("verification failed: %w", orch.Err())
			case hostpage.TypeExpired:
				return out.Encode(m)
			}
		}
	}
}
