package challenge_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/powcaptcha/challenge"
)

func newClient(t *testing.T, h http.HandlerFunc) *challenge.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := challenge.NewClient(srv.URL+"/", "site-1", srv.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_BadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "://bad", "http://"} {
		_, err := challenge.NewClient(u, "k", nil, nil)
		assert.Error(t, err, u)
	}
}

func TestRequestChallenge_OK(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/challenge", r.URL.Path)
		assert.Equal(t, "site-1", r.URL.Query().Get("sitekey"))
		_, _ = io.WriteString(w, `{"challenge":"abc123","difficulty":4}`)
	})

	ch, err := c.RequestChallenge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, challenge.Challenge{Puzzle: "abc123", Difficulty: 4}, ch)
}

func TestRequestChallenge_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"challenge":`)
		},
		"empty puzzle": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"challenge":"","difficulty":3}`)
		},
		"missing difficulty": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"challenge":"abc"}`)
		},
		"negative difficulty": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"challenge":"abc","difficulty":-1}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newClient(t, h).RequestChallenge(context.Background())
			assert.ErrorIs(t, err, challenge.ErrChallengeUnavailable)
		})
	}
}

func TestRequestChallenge_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := challenge.NewClient(url, "k", nil, nil)
	require.NoError(t, err)
	_, err = c.RequestChallenge(context.Background())
	assert.ErrorIs(t, err, challenge.ErrChallengeUnavailable)
}

func TestRequestChallenge_ContextCanceled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.RequestChallenge(ctx)
	assert.ErrorIs(t, err, challenge.ErrChallengeUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerifySolution_OK(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/verify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req challenge.VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, challenge.VerifyRequest{
			Challenge: "abc123", Nonce: 58321, Solution: "0000beef", SiteKey: "site-1",
		}, req)
		_, _ = io.WriteString(w, `{"success":true,"token":"tok_xyz","expires_in":120}`)
	})

	r, err := c.VerifySolution(context.Background(), challenge.Solution{Puzzle: "abc123", Nonce: 58321, Digest: "0000beef"})
	require.NoError(t, err)
	assert.Equal(t, "tok_xyz", r.Token)
	assert.Equal(t, 120*time.Second, r.ExpiresIn)
	assert.EqualValues(t, 1, calls.Load())
}

func TestVerifySolution_NoExpiresIn(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"token":"t"}`)
	})
	r, err := c.VerifySolution(context.Background(), challenge.Solution{Puzzle: "p"})
	require.NoError(t, err)
	assert.Zero(t, r.ExpiresIn)
}

func TestVerifySolution_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"rejected": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"success":false}`)
		},
		"no token": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"success":true}`)
		},
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"success":true,"token":"t"}`)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>")
		},
		"oversized": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"success":true,"token":"`+strings.Repeat("a", 70<<10)+`"}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newClient(t, h).VerifySolution(context.Background(), challenge.Solution{Puzzle: "p"})
			assert.ErrorIs(t, err, challenge.ErrVerificationFailed)
		})
	}
}
