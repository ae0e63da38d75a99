package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/firasghr/powcaptcha/logger"
)

const (
	issuePath  = "/api/challenge"
	verifyPath = "/api/verify"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 64 << 10
)

// Client issues exactly one HTTP request per operation and never retries:
// an issued puzzle cannot be reused, so retrying means starting a new
// attempt.  Safe for concurrent use.
type Client struct {
	base    *url.URL
	siteKey string
	http    *http.Client
	log     *logger.Logger
}

// NewClient returns a Client for the service rooted at baseURL.  httpClient
// is usually built with client.NewHTTPClient; log may be nil.
func NewClient(baseURL, siteKey string, httpClient *http.Client, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("challenge: parse base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("challenge: base URL %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("challenge: base URL %q has no host", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{base: u, siteKey: siteKey, http: httpClient, log: log}, nil
}

// RequestChallenge fetches a new puzzle.  Every failure wraps
// ErrChallengeUnavailable.
func (c *Client) RequestChallenge(ctx context.Context) (Challenge, error) {
	u := c.endpoint(issuePath)
	q := u.Query()
	q.Set("sitekey", c.siteKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Challenge{}, fmt.Errorf("%w: build request: %v", ErrChallengeUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	var body IssueResponse
	if err := c.do(req, &body); err != nil {
		c.log.Warn("challenge request failed", "error", err)
		return Challenge{}, fmt.Errorf("%w: %w", ErrChallengeUnavailable, err)
	}
	if body.Challenge == "" {
		return Challenge{}, fmt.Errorf("%w: empty puzzle", ErrChallengeUnavailable)
	}
	if body.Difficulty == nil || *body.Difficulty < 0 {
		return Challenge{}, fmt.Errorf("%w: missing or negative difficulty", ErrChallengeUnavailable)
	}

	c.log.Debug("challenge issued", "difficulty", *body.Difficulty)
	return Challenge{Puzzle: body.Challenge, Difficulty: *body.Difficulty}, nil
}

// VerifySolution submits sol and returns the issued token.  Every failure
// wraps ErrVerificationFailed.
func (c *Client) VerifySolution(ctx context.Context, sol Solution) (Receipt, error) {
	payload, err := json.Marshal(VerifyRequest{
		Challenge: sol.Puzzle,
		Nonce:     sol.Nonce,
		Solution:  sol.Digest,
		SiteKey:   c.siteKey,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: encode request: %v", ErrVerificationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(verifyPath).String(), bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: build request: %v", ErrVerificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var body VerifyResponse
	if err := c.do(req, &body); err != nil {
		c.log.Warn("verification request failed", "error", err)
		return Receipt{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	if !body.Success {
		return Receipt{}, fmt.Errorf("%w: rejected by service", ErrVerificationFailed)
	}
	if body.Token == "" {
		return Receipt{}, fmt.Errorf("%w: no token in response", ErrVerificationFailed)
	}

	r := Receipt{Token: body.Token}
	if body.ExpiresIn > 0 {
		r.ExpiresIn = time.Duration(body.ExpiresIn) * time.Second
	}
	return r, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	return &u
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
