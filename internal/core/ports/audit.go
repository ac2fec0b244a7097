package ports

import (
	"context"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// AuditRecorder accepts security events without blocking the caller.
type AuditRecorder interface {
	Record(ev domain.SecurityEvent)
}

// AuditRepository persists security events.
type AuditRepository interface {
	Insert(ctx context.Context, ev domain.SecurityEvent) error
}

// NopAudit discards every event.
type NopAudit struct{}

func (NopAudit) Record(domain.SecurityEvent) {}
