package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// SessionRevoker invalidates every outstanding artifact of an identity on all
// devices by advancing its epoch.
type SessionRevoker struct {
	store  ports.ClaimsStore
	audit  ports.AuditRecorder
	logger zerolog.Logger
}

func NewSessionRevoker(store ports.ClaimsStore, audit ports.AuditRecorder, logger zerolog.Logger) *SessionRevoker {
	if audit == nil {
		audit = ports.NopAudit{}
	}
	return &SessionRevoker{store: store, audit: audit, logger: logger}
}

// Revoke is idempotent: revoking an unknown identity, or one with nothing
// outstanding, changes nothing and succeeds.
func (r *SessionRevoker) Revoke(ctx context.Context, uid string, meta ports.RequestMeta) error {
	if uid == "" {
		return domain.ErrInvalidInput
	}
	advanced, err := r.store.Revoke(ctx, uid)
	if err != nil {
		r.logger.Error().Err(err).Str("uid", uid).Msg("failed to revoke sessions")
		return fmt.Errorf("%w: revoke: %v", domain.ErrUpstreamUnavailable, err)
	}
	if !advanced {
		r.logger.Debug().Str("uid", uid).Msg("revoke: nothing outstanding")
		return nil
	}

	r.logger.Info().Str("uid", uid).Msg("sessions revoked")
	r.audit.Record(domain.SecurityEvent{
		Type:       domain.EventSessionRevoked,
		UID:        uid,
		RequestID:  meta.RequestID,
		RemoteIP:   meta.RemoteIP,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}
