package domain

import (
	"errors"
	"fmt"
	"time"
)

// SessionCookieName is the cookie carrying the signed session artifact.
const SessionCookieName = "__session"

// DefaultSessionTTL is the fixed lifetime of an issued artifact.
const DefaultSessionTTL = 5 * 24 * time.Hour

// Input and issuance errors.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidToken   = errors.New("invalid identity token")
	ErrNotProvisioned = errors.New("identity is not provisioned")
	ErrForbidden      = errors.New("access forbidden")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// ErrUpstreamUnavailable covers the identity provider and the claims store.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrIssuerUnavailable   = fmt.Errorf("%w: identity issuer", ErrUpstreamUnavailable)
)

// Verification errors all wrap ErrUnauthenticated. Callers must treat them
// alike; the individual reasons exist for audit and metrics only.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrMissingSession   = fmt.Errorf("%w: no session", ErrUnauthenticated)
	ErrExpired          = fmt.Errorf("%w: session expired", ErrUnauthenticated)
	ErrMalformed        = fmt.Errorf("%w: malformed session", ErrUnauthenticated)
	ErrRevoked          = fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	ErrSignatureInvalid = fmt.Errorf("%w: invalid session signature", ErrUnauthenticated)
)

// SessionArtifact is the signed, time-bounded proof of authentication. Its
// claims are frozen at issuance.
type SessionArtifact struct {
	ID        string
	Identity  Identity
	Claims    Claims
	IssuedAt  time.Time
	ExpiresAt time.Time
	Epoch     int64
}

// Lifetime is the fixed window between issuance and expiry.
func (a SessionArtifact) Lifetime() time.Duration {
	return a.ExpiresAt.Sub(a.IssuedAt)
}

// ExpiredAt reports whether the artifact is no longer valid at now.
func (a SessionArtifact) ExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// FailureReason maps a verification error to a short audit label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingSession):
		return "missing"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "store_error"
	default:
		return "unknown"
	}
}
