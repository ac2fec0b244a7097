package ports

import (
	"context"
	"time"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// RequestMeta carries request attributes used for auditing only.
type RequestMeta struct {
	RequestID string
	RemoteIP  string
}

// IssuedSession is the output of a successful issuance. Token is the encoded
// artifact; the HTTP adapter turns it into the session cookie.
type IssuedSession struct {
	Token    string
	Artifact domain.SessionArtifact
	MaxAge   time.Duration
}

// Session is a verified artifact. Claims are exactly those embedded at
// issuance.
type Session struct {
	ID        string
	Identity  domain.Identity
	Claims    domain.Claims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SetClaimsInput is an administrative claims change. Actor is nil for
// operator changes made outside a session, such as bootstrapping the first
// administrator from the command line.
type SetClaimsInput struct {
	ActorUID     string
	Actor        *domain.Claims
	UID          string
	Claims       domain.Claims
	KeepSessions bool
	Meta         RequestMeta
}

type SessionIssuer interface {
	Issue(ctx context.Context, idToken string, meta RequestMeta) (*IssuedSession, error)
}

type SessionVerifier interface {
	Verify(ctx context.Context, raw string) (*Session, error)
}

type SessionRevoker interface {
	Revoke(ctx context.Context, uid string, meta RequestMeta) error
}

type ClaimsService interface {
	SetClaims(ctx context.Context, in SetClaimsInput) (*domain.ClaimsRecord, error)
	GetClaims(ctx context.Context, uid string) (*domain.ClaimsRecord, error)
}
