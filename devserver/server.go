// Package devserver is a development stand-in for the verification service.
// It issues one-time puzzles, checks submitted solutions and signs HS256
// tokens.  It is meant for tests and local runs, not for production.
package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	prand "pgregory.net/rand"

	"github.com/firasghr/powcaptcha/challenge"
	"github.com/firasghr/powcaptcha/hasher"
	"github.com/firasghr/powcaptcha/logger"
)

// Issuer is the iss claim of every token.
const Issuer = "powcaptcha-dev"

// Config configures a Server.  Zero fields get defaults, except Difficulty
// where zero is a valid setting.
type Config struct {
	// SiteKey is the only key accepted.  Empty accepts any key.
	SiteKey string

	// Difficulty of issued puzzles.  Negative means 4.
	Difficulty int

	// TokenTTL is announced as expires_in.  Defaults to 300s.
	TokenTTL time.Duration

	// ChallengeTTL bounds how long an issued puzzle can be redeemed.
	// Defaults to 5m.
	ChallengeTTL time.Duration

	// SigningKey signs tokens.  Defaults to 32 random bytes.
	SigningKey []byte

	// IssueRate limits puzzle issuance across all clients.  Zero means
	// unlimited.
	IssueRate  rate.Limit
	IssueBurst int

	Hash   hasher.Func
	Logger *logger.Logger
	Now    func() time.Time
}

// Claims are the claims of an issued token.
type Claims struct {
	jwt.RegisteredClaims
	Difficulty int `json:"difficulty"`
}

// Server is safe for concurrent use.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	limiter *rate.Limiter
	log     *logger.Logger

	mu      sync.Mutex
	rnd     *prand.Rand
	pending map[string]time.Time
}

// New returns a Server ready to serve.
func New(cfg Config) (*Server, error) {
	if cfg.Difficulty < 0 {
		cfg.Difficulty = 4
	}
	if cfg.Difficulty > hasher.DigestLen {
		return nil, fmt.Errorf("devserver: difficulty %d exceeds digest length %d", cfg.Difficulty, hasher.DigestLen)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 300 * time.Second
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		if _, err := rand.Read(cfg.SigningKey); err != nil {
			return nil, fmt.Errorf("devserver: generate signing key: %w", err)
		}
	}
	if cfg.Hash == nil {
		cfg.Hash = hasher.Digest
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		rnd:     prand.New(),
		pending: make(map[string]time.Time),
	}
	if cfg.IssueRate > 0 {
		burst := cfg.IssueBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(cfg.IssueRate, burst)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.accessLog())
	api := s.engine.Group("/api")
	api.GET("/challenge", s.handleChallenge)
	api.POST("/verify", s.handleVerify)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("dev service listening", "addr", addr, "difficulty", s.cfg.Difficulty)

	select {
	case err := <-errCh:
		return fmt.Errorf("devserver: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devserver: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}

// Pending returns the number of puzzles issued and not yet redeemed or
// expired.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.cfg.Now())
	return len(s.pending)
}

// ValidateToken checks the signature and expiry of value.
func (s *Server) ValidateToken(value string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.SigningKey, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("devserver: parse token: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("devserver: invalid token")
	}
	return claims, nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func (s *Server) siteKeyOK(key string) bool {
	return s.cfg.SiteKey == "" || key == s.cfg.SiteKey
}

func (s *Server) handleChallenge(c *gin.Context) {
	if !s.siteKeyOK(c.Query("sitekey")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "unknown site key"})
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	now := s.cfg.Now()
	s.mu.Lock()
	s.sweepLocked(now)
	puzzle := fmt.Sprintf("%016x%016x", s.rnd.Uint64(), s.rnd.Uint64())
	s.pending[puzzle] = now
	s.mu.Unlock()

	difficulty := s.cfg.Difficulty
	c.JSON(http.StatusOK, challenge.IssueResponse{Challenge: puzzle, Difficulty: &difficulty})
}

func (s *Server) handleVerify(c *gin.Context) {
	var req challenge.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request"})
		return
	}
	if !s.siteKeyOK(req.SiteKey) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "unknown site key"})
		return
	}

	// A puzzle is consumed by its first submission, right or wrong.
	now := s.cfg.Now()
	s.mu.Lock()
	s.sweepLocked(now)
	_, ok := s.pending[req.Challenge]
	delete(s.pending, req.Challenge)
	s.mu.Unlock()

	if !ok {
		s.log.Debug("unknown or expired puzzle")
		c.JSON(http.StatusOK, challenge.VerifyResponse{Success: false})
		return
	}
	if !hasher.Check(s.cfg.Hash, req.Challenge, req.Nonce, strings.TrimSpace(req.Solution), s.cfg.Difficulty) {
		s.log.Debug("solution rejected", "nonce", req.Nonce)
		c.JSON(http.StatusOK, challenge.VerifyResponse{Success: false})
		return
	}

	value, err := s.sign(req.SiteKey, now)
	if err != nil {
		s.log.Error("sign token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, challenge.VerifyResponse{
		Success:   true,
		Token:     value,
		ExpiresIn: int64(s.cfg.TokenTTL / time.Second),
	})
}

func (s *Server) sign(siteKey string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   siteKey,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
		Difficulty: s.cfg.Difficulty,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

// sweepLocked drops expired puzzles.  Caller holds mu.
func (s *Server) sweepLocked(now time.Time) {
	for p, issued := range s.pending {
		if now.Sub(issued) > s.cfg.ChallengeTTL {
			delete(s.pending, p)
		}
	}
}
