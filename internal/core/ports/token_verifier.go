package ports

import (
	"context"
	"time"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// VerifiedToken is the result of a successful identity-token verification.
type VerifiedToken struct {
	Identity domain.Identity
	AuthTime time.Time
	IssuedAt time.Time
}

// TokenVerifier checks an identity token with its issuer. Implementations
// return domain.ErrInvalidToken for rejected tokens and
// domain.ErrIssuerUnavailable when the issuer cannot be reached.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*VerifiedToken, error)
}

// SessionCodec signs and parses session artifacts. Decode checks the
// signature and structure only; expiry and revocation are the verifier's job.
type SessionCodec interface {
	Encode(a domain.SessionArtifact) (string, error)
	Decode(raw string) (*domain.SessionArtifact, error)
}
