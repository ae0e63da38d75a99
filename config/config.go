// Package config loads the widget's JSON configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/firasghr/powcaptcha/client"
	"github.com/firasghr/powcaptcha/hasher"
	"github.com/firasghr/powcaptcha/logger"
	"github.com/firasghr/powcaptcha/solver"
)

// Duration is a time.Duration that reads either a Go duration string
// ("30s", "5m") or an integer number of nanoseconds from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: parse duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("config: duration must be a string or integer, got %s", b)
	}
	*d = Duration(n)
	return nil
}

// Config is loaded once at startup and then only read.
type Config struct {
	// BaseURL is the root of the verification service, e.g.
	// "https://captcha.example.com".
	BaseURL string `json:"base_url"`

	// SiteKey identifies the embedding site to the service.
	SiteKey string `json:"site_key"`

	// RequestTimeout bounds each call to the service.
	RequestTimeout Duration `json:"request_timeout"`

	// Fingerprint selects the TLS/HTTP2 fingerprint: "" or "chrome120".
	Fingerprint string `json:"fingerprint"`

	// ProxyURL routes service calls through a proxy.
	ProxyURL string `json:"proxy_url"`

	// ProxyFile lists proxies, one URL per line.  Each widget takes the
	// next one in turn.  Mutually exclusive with ProxyURL.
	ProxyFile string `json:"proxy_file"`

	// HashAlgorithm names the digest; only "sha256" is supported.
	HashAlgorithm string `json:"hash_algorithm"`

	// MaxIterations, MaxDuration and BatchSize bound every search.  Both
	// solver variants share them.
	MaxIterations uint64   `json:"max_iterations"`
	MaxDuration   Duration `json:"max_duration"`
	BatchSize     uint64   `json:"batch_size"`

	// Workers is the number of background search goroutines per attempt.
	Workers int `json:"workers"`

	// MaxBackgroundSolvers caps concurrent background searches in the
	// process.  Zero forces the fallback solver.
	MaxBackgroundSolvers int `json:"max_background_solvers"`

	// TokenLifetime applies when the service does not announce one.
	TokenLifetime Duration `json:"token_lifetime"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// LoadConfig reads filename over DefaultConfig, so omitted fields keep their
// defaults, and validates the result.  Unknown fields are rejected.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a fresh Config with the standard bounds.  BaseURL
// and SiteKey have no default.
func DefaultConfig() *Config {
	limits := solver.DefaultLimits()
	return &Config{
		RequestTimeout:       Duration(30 * time.Second),
		HashAlgorithm:        "sha256",
		MaxIterations:        limits.MaxIterations,
		MaxDuration:          Duration(limits.MaxDuration),
		BatchSize:            limits.BatchSize,
		Workers:              1,
		MaxBackgroundSolvers: 4,
		TokenLifetime:        Duration(300 * time.Second),
		LogLevel:             "info",
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	} else if c.Fingerprint == client.FingerprintChrome120 && u.Scheme != "https" {
		errs = append(errs, errors.New("fingerprint chrome120 requires an https base_url"))
	}
	if c.SiteKey == "" {
		errs = append(errs, errors.New("site_key is required"))
	}
	switch c.Fingerprint {
	case client.FingerprintNone, client.FingerprintChrome120:
	default:
		errs = append(errs, fmt.Errorf("unknown fingerprint %q", c.Fingerprint))
	}
	if c.Fingerprint != client.FingerprintNone && (c.ProxyURL != "" || c.ProxyFile != "") {
		errs = append(errs, errors.New("proxies cannot be combined with a fingerprint"))
	}
	if c.ProxyURL != "" && c.ProxyFile != "" {
		errs = append(errs, errors.New("proxy_url and proxy_file are mutually exclusive"))
	}
	if _, err := hasher.Lookup(c.HashAlgorithm); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, errors.New("token_lifetime must be positive"))
	}
	if c.MaxBackgroundSolvers < 0 {
		errs = append(errs, errors.New("max_background_solvers must not be negative"))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.rawParams().Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Limits returns the search bounds shared by both solver variants.
func (c *Config) Limits() solver.Limits {
	return solver.Limits{
		MaxIterations: c.MaxIterations,
		MaxDuration:   time.Duration(c.MaxDuration),
		BatchSize:     c.BatchSize,
	}
}

// SolverParams returns the one Params value handed to both solvers.
func (c *Config) SolverParams() (solver.Params, error) {
	h, err := hasher.Lookup(c.HashAlgorithm)
	if err != nil {
		return solver.Params{}, fmt.Errorf("config: %w", err)
	}
	p := c.rawParams()
	p.Hash = h
	return p, nil
}

func (c *Config) rawParams() solver.Params {
	return solver.Params{Limits: c.Limits(), Workers: c.Workers}
}

// ClientOptions returns the transport settings for client.NewHTTPClient.
func (c *Config) ClientOptions() client.Options {
	return c.ClientOptionsVia(c.ProxyURL)
}

// ClientOptionsVia is ClientOptions routed through proxyURL instead of
// ProxyURL, for widgets served from the ProxyFile rotation.
func (c *Config) ClientOptionsVia(proxyURL string) client.Options {
	return client.Options{
		Timeout:     time.Duration(c.RequestTimeout),
		Proxy:       strings.TrimSpace(proxyURL),
		Fingerprint: c.Fingerprint,
	}
}

// LoggerOptions returns the logger settings.  An invalid level falls back
// to info; Validate reports it.
func (c *Config) LoggerOptions() logger.Options {
	level, _ := logger.ParseLevel(c.LogLevel)
	return logger.Options{Level: level, File: c.LogFile}
}
