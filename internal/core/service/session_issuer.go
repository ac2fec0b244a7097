package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// ProvisionPolicy decides what happens on the first login of an identity that
// has no claims record.
type ProvisionPolicy string

const (
	// ProvisionDefault creates {tenant: none, role: staff}.
	ProvisionDefault ProvisionPolicy = "default"
	// ProvisionReject refuses issuance until an administrator assigns claims.
	ProvisionReject ProvisionPolicy = "reject"
)

const maxIDTokenLen = 8 << 10

// IssuerOptions configures a SessionIssuer. Zero values fall back to defaults.
type IssuerOptions struct {
	TTL    time.Duration
	Policy ProvisionPolicy
	Now    func() time.Time
}

// SessionIssuer exchanges a verified identity token for a session artifact.
type SessionIssuer struct {
	verifier ports.TokenVerifier
	store    ports.ClaimsStore
	codec    ports.SessionCodec
	audit    ports.AuditRecorder
	ttl      time.Duration
	policy   ProvisionPolicy
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSessionIssuer(
	verifier ports.TokenVerifier,
	store ports.ClaimsStore,
	codec ports.SessionCodec,
	audit ports.AuditRecorder,
	opts IssuerOptions,
	logger zerolog.Logger,
) *SessionIssuer {
	if opts.TTL <= 0 {
		opts.TTL = domain.DefaultSessionTTL
	}
	if opts.Policy == "" {
		opts.Policy = ProvisionDefault
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if audit == nil {
		audit = ports.NopAudit{}
	}
	return &SessionIssuer{
		verifier: verifier,
		store:    store,
		codec:    codec,
		audit:    audit,
		ttl:      opts.TTL,
		policy:   opts.Policy,
		now:      opts.Now,
		logger:   logger,
	}
}

// Issue verifies idToken with the identity issuer, resolves the identity's
// claims and returns a freshly signed artifact bound to the current epoch.
// Nothing is returned on any failure.
func (s *SessionIssuer) Issue(ctx context.Context, idToken string, meta ports.RequestMeta) (*ports.IssuedSession, error) {
	if err := checkTokenShape(idToken); err != nil {
		s.reject("", "malformed_token", meta)
		return nil, err
	}

	verified, err := s.verifier.VerifyToken(ctx, idToken)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIssuerUnavailable):
			s.logger.Error().Err(err).Str("request_id", meta.RequestID).Msg("identity issuer unavailable")
			s.reject("", "issuer_unavailable", meta)
			return nil, err
		case errors.Is(err, domain.ErrInvalidToken):
			s.reject("", "token_rejected", meta)
			return nil, err
		default:
			s.reject("", "token_rejected", meta)
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
	}
	uid := verified.Identity.UID
	if uid == "" {
		s.reject("", "missing_subject", meta)
		return nil, domain.ErrInvalidToken
	}

	if err := s.resolveClaims(ctx, uid, meta); err != nil {
		return nil, err
	}

	// Claims and epoch must come from the same write.
	record, err := s.store.ReserveEpoch(ctx, uid)
	if err != nil {
		s.logger.Error().Err(err).Str("uid", uid).Msg("failed to reserve session epoch")
		return nil, fmt.Errorf("%w: reserve epoch: %v", domain.ErrUpstreamUnavailable, err)
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	artifact := domain.SessionArtifact{
		ID:        uuid.NewString(),
		Identity:  verified.Identity,
		Claims:    record.Claims,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
		Epoch:     record.Epoch,
	}

	token, err := s.codec.Encode(artifact)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	s.logger.Info().
		Str("uid", uid).
		Str("session_id", artifact.ID).
		Str("tenant_id", artifact.Claims.TenantID).
		Str("role", string(artifact.Claims.Role)).
		Msg("session issued")
	s.audit.Record(domain.SecurityEvent{
		Type:       domain.EventSessionIssued,
		UID:        uid,
		SessionID:  artifact.ID,
		RequestID:  meta.RequestID,
		RemoteIP:   meta.RemoteIP,
		OccurredAt: issuedAt,
	})

	return &ports.IssuedSession{Token: token, Artifact: artifact, MaxAge: s.ttl}, nil
}

// resolveClaims makes sure uid has a claims record, provisioning one under
// the default policy.
func (s *SessionIssuer) resolveClaims(ctx context.Context, uid string, meta ports.RequestMeta) error {
	_, err := s.store.Get(ctx, uid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrClaimsNotFound) {
		s.logger.Error().Err(err).Str("uid", uid).Msg("failed to read claims")
		return fmt.Errorf("%w: read claims: %v", domain.ErrUpstreamUnavailable, err)
	}

	if s.policy == ProvisionReject {
		s.reject(uid, "not_provisioned", meta)
		return domain.ErrNotProvisioned
	}

	if _, err := s.store.Provision(ctx, uid, domain.DefaultClaims()); err != nil {
		s.logger.Error().Err(err).Str("uid", uid).Msg("failed to provision claims")
		return fmt.Errorf("%w: provision claims: %v", domain.ErrUpstreamUnavailable, err)
	}
	s.logger.Info().Str("uid", uid).Msg("identity provisioned with default claims")
	s.audit.Record(domain.SecurityEvent{
		Type:       domain.EventIdentityProvisioned,
		UID:        uid,
		RequestID:  meta.RequestID,
		RemoteIP:   meta.RemoteIP,
		OccurredAt: s.now().UTC(),
	})
	return nil
}

func (s *SessionIssuer) reject(uid, reason string, meta ports.RequestMeta) {
	s.audit.Record(domain.SecurityEvent{
		Type:       domain.EventSessionRejected,
		UID:        uid,
		Reason:     reason,
		RequestID:  meta.RequestID,
		RemoteIP:   meta.RemoteIP,
		OccurredAt: s.now().UTC(),
	})
}

// checkTokenShape rejects anything that cannot be a compact JWS before any
// network round trip is made.
func checkTokenShape(token string) error {
	if token == "" || len(token) > maxIDTokenLen {
		return domain.ErrInvalidToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return domain.ErrInvalidToken
	}
	for _, p := range parts {
		if p == "" {
			return domain.ErrInvalidToken
		}
		if _, err := base64.RawURLEncoding.DecodeString(p); err != nil {
			return domain.ErrInvalidToken
		}
	}
	return nil
}
