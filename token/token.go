// Package token holds the trust token issued after a verified solution and
// the timer that invalidates it locally.
//
// Tokens are never renewed: when the validity window ends the widget returns
// to its idle state and a new proof of work is needed.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLifetime is used when neither the service nor the token itself
// states a validity window.
const DefaultLifetime = 300 * time.Second

// Token is an opaque credential plus the window in which the widget treats
// it as valid.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// New returns a token valid for lifetime from issuedAt.
func New(value string, issuedAt time.Time, lifetime time.Duration) Token {
	return Token{Value: value, IssuedAt: issuedAt, ExpiresAt: issuedAt.Add(lifetime)}
}

// Lifetime returns the validity window of the token.
func (t Token) Lifetime() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// Remaining returns how long the token stays valid after now, never negative.
func (t Token) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Expired reports whether the validity window has ended at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsZero reports whether t carries no value.
func (t Token) IsZero() bool { return t.Value == "" }

// ParseClaims decodes the claims of a JWT without verifying its signature.
// The widget never trusts these claims for anything but display timing; the
// relying site verifies the token with the service.
func ParseClaims(value string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return nil, fmt.Errorf("token: parse JWT: %w", err)
	}
	return claims, nil
}

// ResolveLifetime picks the validity window for a freshly issued token: the
// service's announced window if positive, otherwise the time left until the
// JWT "exp" claim if value is a JWT with a future expiry, otherwise def.
func ResolveLifetime(value string, announced time.Duration, def time.Duration, now time.Time) time.Duration {
	if announced > 0 {
		return announced
	}
	if claims, err := ParseClaims(value); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if d := exp.Sub(now); d > 0 {
				return d
			}
		}
	}
	if def <= 0 {
		return DefaultLifetime
	}
	return def
}
