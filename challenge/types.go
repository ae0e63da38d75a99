// Package challenge talks to the remote verification service: it fetches
// proof-of-work puzzles and submits solutions in exchange for tokens.
package challenge

import (
	"errors"
	"time"
)

var (
	// ErrChallengeUnavailable is returned when a puzzle could not be
	// obtained: transport failure, non-2xx status, or a malformed body.
	ErrChallengeUnavailable = errors.New("challenge unavailable")

	// ErrVerificationFailed is returned when a solution was not accepted:
	// transport failure, non-2xx status, malformed body, or an explicit
	// rejection by the service.
	ErrVerificationFailed = errors.New("verification failed")
)

// Challenge is one issued puzzle.  It belongs to a single solve attempt.
type Challenge struct {
	Puzzle     string
	Difficulty int
}

// Solution is a nonce whose digest satisfies the puzzle's difficulty.
type Solution struct {
	Puzzle string
	Nonce  uint64
	Digest string
}

// Receipt is the service's answer to an accepted solution.
type Receipt struct {
	Token string

	// ExpiresIn is the validity window announced by the service, or zero
	// when the response carried none.
	ExpiresIn time.Duration
}

// Wire formats shared with devserver.

// IssueResponse is the body of GET /api/challenge.
type IssueResponse struct {
	Challenge  string `json:"challenge"`
	Difficulty *int   `json:"difficulty"`
}

// VerifyRequest is the body of POST /api/verify.
type VerifyRequest struct {
	Challenge string `json:"challenge"`
	Nonce     uint64 `json:"nonce"`
	Solution  string `json:"solution"`
	SiteKey   string `json:"sitekey"`
}

// VerifyResponse is the body returned by POST /api/verify.
type VerifyResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}
