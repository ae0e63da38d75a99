package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/firasghr/powcaptcha/devserver"
	"github.com/firasghr/powcaptcha/logger"
)

var (
	serveAddr       string
	serveSiteKey    string
	serveDifficulty int
	serveTokenTTL   time.Duration
	serveIssueRate  float64
	serveIssueBurst int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development verification service",
	Long: "Serves GET /api/challenge and POST /api/verify with one-time puzzles " +
		"and HS256 tokens.  For tests and local runs only.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		level := logger.LevelInfo
		if logLevel != "" {
			l, err := logger.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			level = l
		}
		log := logger.New(level)
		defer func() { _ = log.Sync() }()

		gin.SetMode(gin.ReleaseMode)
		srv, err := devserver.New(devserver.Config{
			SiteKey:    serveSiteKey,
			Difficulty: serveDifficulty,
			TokenTTL:   serveTokenTTL,
			IssueRate:  rate.Limit(serveIssueRate),
			IssueBurst: serveIssueBurst,
			Logger:     log.With("component", "devserver"),
		})
		if err != nil {
			return err
		}
		return srv.ListenAndServe(ctx, serveAddr)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", ":8081", "listen address")
	f.StringVar(&serveSiteKey, "site-key", "", "accepted site key; empty accepts any")
	f.IntVar(&serveDifficulty, "difficulty", 4, "leading zero hex characters required")
	f.DurationVar(&serveTokenTTL, "token-ttl", 300*time.Second, "token validity announced as expires_in")
	f.Float64Var(&serveIssueRate, "issue-rate", 0, "puzzles issued per second; 0 is unlimited")
	f.IntVar(&serveIssueBurst, "issue-burst", 10, "burst size for --issue-rate")
}
