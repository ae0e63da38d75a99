package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/powcaptcha/token"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestToken_Window(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok := token.New("tok_xyz", now, 300*time.Second)

	assert.Equal(t, 300*time.Second, tok.Lifetime())
	assert.Equal(t, 100*time.Second, tok.Remaining(now.Add(200*time.Second)))
	assert.Zero(t, tok.Remaining(now.Add(time.Hour)))
	assert.False(t, tok.Expired(now.Add(299*time.Second)))
	assert.True(t, tok.Expired(now.Add(300*time.Second)))
	assert.False(t, tok.IsZero())
	assert.True(t, token.Token{}.IsZero())
}

func TestParseClaims(t *testing.T) {
	s := signed(t, jwt.MapClaims{"sub": "site-1", "exp": 9999999999})
	claims, err := token.ParseClaims(s)
	require.NoError(t, err)
	assert.Equal(t, "site-1", claims["sub"])

	_, err = token.ParseClaims("tok_xyz")
	assert.Error(t, err)
}

func TestResolveLifetime(t *testing.T) {
	now := time.Now()
	jwtTok := signed(t, jwt.MapClaims{"exp": now.Add(90 * time.Second).Unix()})
	stale := signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})

	assert.Equal(t, 30*time.Second, token.ResolveLifetime(jwtTok, 30*time.Second, time.Minute, now))
	assert.InDelta(t, float64(90*time.Second), float64(token.ResolveLifetime(jwtTok, 0, time.Minute, now)), float64(time.Second))
	assert.Equal(t, time.Minute, token.ResolveLifetime(stale, 0, time.Minute, now))
	assert.Equal(t, time.Minute, token.ResolveLifetime("opaque", 0, time.Minute, now))
	assert.Equal(t, token.DefaultLifetime, token.ResolveLifetime("opaque", 0, 0, now))
}
