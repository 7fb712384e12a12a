// Package auth establishes caller identity for the gateway: bearer ID tokens
// verified against the identity provider for end users, and a static shared
// secret for trusted server-to-server automation calls.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken indicates the bearer credential itself was rejected:
// missing, malformed, expired, or failing signature/issuer/audience checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrProviderUnavailable indicates the identity provider could not be
// consulted (network failure, bad certificate payload). Handlers surface it
// identically to ErrInvalidToken, but logs and callers can tell them apart.
var ErrProviderUnavailable = errors.New("auth: identity provider unavailable")

// Identity carries the verified claims of an end user. It is derived per
// request and never stored.
type Identity struct {
	UID    string
	Email  string
	Claims map[string]any
}

// Verifier validates a bearer credential and extracts the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
