// powcaptcha runs proof-of-work verification widgets from the command line.
//
// Commands:
//
//	solve   run one widget against a verification service and print its token
//	serve   run the development verification service
//	bench   run many widgets on a bounded worker pool and report metrics
//
// solve and bench read a JSON config file (see package config).
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/powcaptcha/challenge"
	"github.com/firasghr/powcaptcha/client"
	"github.com/firasghr/powcaptcha/config"
	"github.com/firasghr/powcaptcha/logger"
	"github.com/firasghr/powcaptcha/metrics"
	"github.com/firasghr/powcaptcha/orchestrator"
	"github.com/firasghr/powcaptcha/proxy"
	"github.com/firasghr/powcaptcha/solver"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "powcaptcha",
	Short:         "Proof-of-work verification widget engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.AddCommand(solveCmd, serveCmd, benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// engine holds what every widget of a process shares.
type engine struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	params   solver.Params
	capacity *solver.Capacity
	proxies  *proxy.Rotation
}

func loadEngine() (*engine, error) {
	if configFile == "" {
		return nil, errors.New("--config is required")
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	log := logger.NewWithOptions(cfg.LoggerOptions())
	params, err := cfg.SolverParams()
	if err != nil {
		return nil, err
	}
	proxies := &proxy.Rotation{}
	if cfg.ProxyFile != "" {
		if proxies, err = proxy.LoadFile(cfg.ProxyFile); err != nil {
			return nil, err
		}
	}

	log.Info("configuration loaded",
		"file", configFile,
		"base_url", cfg.BaseURL,
		"fingerprint", cfg.Fingerprint,
		"workers", params.Workers,
		"max_background_solvers", cfg.MaxBackgroundSolvers,
		"proxies", proxies.Len(),
	)
	return &engine{
		cfg:      cfg,
		log:      log,
		metrics:  metrics.NewMetrics(),
		params:   params,
		capacity: solver.NewCapacity(cfg.MaxBackgroundSolvers),
		proxies:  proxies,
	}, nil
}

// newOrchestrator returns an orchestrator for one widget, with its own
// HTTP client and cookie jar.
func (e *engine) newOrchestrator() (*orchestrator.Orchestrator, error) {
	opts := e.cfg.ClientOptions()
	if e.proxies.Len() > 0 {
		opts = e.cfg.ClientOptionsVia(e.proxies.Next())
	}
	httpClient, err := client.NewHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	cc, err := challenge.NewClient(e.cfg.BaseURL, e.cfg.SiteKey, httpClient, e.log.With("component", "challenge"))
	if err != nil {
		return nil, err
	}
	return orchestrator.New(cc, orchestrator.Config{
		Params:        e.params,
		Background:    solver.BackgroundFactory(e.capacity),
		Fallback:      solver.FallbackFactory,
		TokenLifetime: time.Duration(e.cfg.TokenLifetime),
		Logger:        e.log.With("component", "orchestrator"),
		Metrics:       e.metrics,
	}), nil
}
