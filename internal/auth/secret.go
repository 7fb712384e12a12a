package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrSecretNotConfigured indicates the server has no shared secret set. The
// gate fails closed rather than letting unauthenticated automation calls in.
var ErrSecretNotConfigured = errors.New("auth: shared secret not configured")

// ErrSecretMismatch indicates the supplied secret was missing or wrong.
var ErrSecretMismatch = errors.New("auth: shared secret mismatch")

// SecretGate authorizes server-to-server callers holding a pre-shared key.
type SecretGate struct {
	secret []byte
}

// NewSecretGate builds a gate around the configured secret. An empty secret
// produces a gate that rejects every caller with ErrSecretNotConfigured.
func NewSecretGate(secret string) *SecretGate {
	return &SecretGate{secret: []byte(secret)}
}

// Authorize checks the supplied secret in constant time.
func (g *SecretGate) Authorize(supplied string) error {
	if len(g.secret) == 0 {
		return ErrSecretNotConfigured
	}
	if subtle.ConstantTimeCompare(g.secret, []byte(supplied)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}
