package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// SessionVerifier authenticates a presented artifact. Checks run in a fixed
// order: signature and structure, expiry, then the revocation epoch.
type SessionVerifier struct {
	store  ports.ClaimsStore
	codec  ports.SessionCodec
	audit  ports.AuditRecorder
	now    func() time.Time
	logger zerolog.Logger
}

func NewSessionVerifier(store ports.ClaimsStore, codec ports.SessionCodec, audit ports.AuditRecorder, now func() time.Time, logger zerolog.Logger) *SessionVerifier {
	if now == nil {
		now = time.Now
	}
	if audit == nil {
		audit = ports.NopAudit{}
	}
	return &SessionVerifier{store: store, codec: codec, audit: audit, now: now, logger: logger}
}

// Verify returns the claims embedded at issuance, never the current ones.
// Every authentication failure wraps domain.ErrUnauthenticated; a claims
// store failure is reported as domain.ErrUpstreamUnavailable instead.
func (v *SessionVerifier) Verify(ctx context.Context, raw string) (*ports.Session, error) {
	if raw == "" {
		return nil, domain.ErrMissingSession
	}

	artifact, err := v.codec.Decode(raw)
	if err != nil {
		v.fail("", "", err)
		return nil, err
	}

	if artifact.ExpiredAt(v.now()) {
		v.fail(artifact.Identity.UID, artifact.ID, domain.ErrExpired)
		return nil, domain.ErrExpired
	}

	current, err := v.store.CurrentEpoch(ctx, artifact.Identity.UID)
	switch {
	case errors.Is(err, domain.ErrClaimsNotFound):
		v.fail(artifact.Identity.UID, artifact.ID, domain.ErrRevoked)
		return nil, domain.ErrRevoked
	case err != nil:
		v.logger.Error().Err(err).Str("uid", artifact.Identity.UID).Msg("failed to read session epoch")
		return nil, fmt.Errorf("%w: read epoch: %v", domain.ErrUpstreamUnavailable, err)
	}
	if current != artifact.Epoch {
		v.fail(artifact.Identity.UID, artifact.ID, domain.ErrRevoked)
		return nil, domain.ErrRevoked
	}

	return &ports.Session{
		ID:        artifact.ID,
		Identity:  artifact.Identity,
		Claims:    artifact.Claims,
		IssuedAt:  artifact.IssuedAt,
		ExpiresAt: artifact.ExpiresAt,
	}, nil
}

func (v *SessionVerifier) fail(uid, sessionID string, err error) {
	reason := domain.FailureReason(err)
	v.logger.Debug().Str("uid", uid).Str("reason", reason).Msg("session verification failed")
	v.audit.Record(domain.SecurityEvent{
		Type:       domain.EventVerificationFailed,
		UID:        uid,
		SessionID:  sessionID,
		Reason:     reason,
		OccurredAt: v.now().UTC(),
	})
}
