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

// ClaimsService applies administrative claim changes. A change takes effect
// for new artifacts only; existing sessions keep their embedded claims until
// they are revoked, which happens here unless KeepSessions is set.
type ClaimsService struct {
	store   ports.ClaimsStore
	revoker ports.SessionRevoker
	audit   ports.AuditRecorder
	logger  zerolog.Logger
}

func NewClaimsService(store ports.ClaimsStore, revoker ports.SessionRevoker, audit ports.AuditRecorder, logger zerolog.Logger) *ClaimsService {
	if audit == nil {
		audit = ports.NopAudit{}
	}
	return &ClaimsService{store: store, revoker: revoker, audit: audit, logger: logger}
}

func (s *ClaimsService) SetClaims(ctx context.Context, in ports.SetClaimsInput) (*domain.ClaimsRecord, error) {
	if in.UID == "" {
		return nil, fmt.Errorf("%w: uid is required", domain.ErrInvalidInput)
	}
	if in.Claims.Role == "" {
		in.Claims.Role = domain.RoleStaff
	}
	if _, err := domain.ParseRole(string(in.Claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if err := s.authorize(ctx, in); err != nil {
		return nil, err
	}

	record, err := s.store.SetClaims(ctx, in.UID, in.Claims)
	if err != nil {
		s.logger.Error().Err(err).Str("uid", in.UID).Msg("failed to set claims")
		return nil, fmt.Errorf("%w: set claims: %v", domain.ErrUpstreamUnavailable, err)
	}

	s.logger.Info().
		Str("uid", in.UID).
		Str("actor_uid", in.ActorUID).
		Str("tenant_id", in.Claims.TenantID).
		Str("role", string(in.Claims.Role)).
		Bool("keep_sessions", in.KeepSessions).
		Msg("claims changed")
	s.audit.Record(domain.SecurityEvent{
		Type:      domain.EventClaimsChanged,
		UID:       in.UID,
		ActorUID:  in.ActorUID,
		RequestID: in.Meta.RequestID,
		RemoteIP:  in.Meta.RemoteIP,
		Attributes: map[string]string{
			"tenant_id": in.Claims.TenantID,
			"role":      string(in.Claims.Role),
		},
		OccurredAt: time.Now().UTC(),
	})

	if !in.KeepSessions {
		if err := s.revoker.Revoke(ctx, in.UID, in.Meta); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// authorize limits a session-bound administrator to their own tenant, both
// for the claims being assigned and for the identity being changed.
func (s *ClaimsService) authorize(ctx context.Context, in ports.SetClaimsInput) error {
	if in.Actor == nil {
		return nil
	}
	if !in.Actor.IsAdmin() || !in.Actor.HasTenant() {
		return domain.ErrForbidden
	}
	if in.Claims.TenantID != in.Actor.TenantID {
		return domain.ErrForbidden
	}
	current, err := s.store.Get(ctx, in.UID)
	switch {
	case errors.Is(err, domain.ErrClaimsNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%w: read claims: %v", domain.ErrUpstreamUnavailable, err)
	}
	if current.Claims.HasTenant() && current.Claims.TenantID != in.Actor.TenantID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *ClaimsService) GetClaims(ctx context.Context, uid string) (*domain.ClaimsRecord, error) {
	record, err := s.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, domain.ErrClaimsNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read claims: %v", domain.ErrUpstreamUnavailable, err)
	}
	return record, nil
}
