// Package hasher computes the digests used by the proof-of-work search.
//
// Both solver variants and the remote verification service hash the same
// candidate input, "{puzzle}:{nonce}", and compare the lowercase hexadecimal
// form of the digest against the difficulty.  Keeping the digest and the
// predicate in one package guarantees a solution found by the background
// solver is interchangeable with one found by the fallback solver.
package hasher

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sha256simd "github.com/minio/sha256-simd"
)

// Alphabet is the number of distinct characters in a digest's textual
// encoding.  The progress estimator derives its expected search size from it.
const Alphabet = 16

// DigestLen is the length of a hex-encoded SHA-256 digest.
const DigestLen = 64

// ErrUnsupportedAlgorithm is returned by Lookup for unknown algorithm names.
var ErrUnsupportedAlgorithm = errors.New("hasher: unsupported algorithm")

// Func maps a candidate input to its lowercase hexadecimal digest.
type Func func(input string) string

// Digest returns the SHA-256 digest of input as 64 lowercase hex characters.
// sha256-simd picks the fastest available instruction set at init time and
// produces output identical to crypto/sha256.
func Digest(input string) string {
	sum := sha256simd.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Lookup resolves a configured algorithm name.  An empty name selects
// SHA-256.  Unknown names are an error rather than a silent downgrade.
func Lookup(name string) (Func, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256", "sha-256":
		return Digest, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// Input builds the candidate string "{puzzle}:{nonce}".
func Input(puzzle string, nonce uint64) string {
	return puzzle + ":" + strconv.FormatUint(nonce, 10)
}

// MeetsDifficulty reports whether the first difficulty characters of digest
// are all '0'.  A difficulty larger than the digest can never be met.
func MeetsDifficulty(digest string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(digest) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if digest[i] != '0' {
			return false
		}
	}
	return true
}

// Check recomputes the digest for puzzle and nonce and reports whether it
// matches digest and satisfies difficulty.
func Check(h Func, puzzle string, nonce uint64, digest string, difficulty int) bool {
	if h == nil {
		h = Digest
	}
	got := h(Input(puzzle, nonce))
	return got == strings.ToLower(digest) && MeetsDifficulty(got, difficulty)
}
