package memory

import (
	"context"
	"sync"

	"github.com/medisync/session-gateway/internal/core/domain"
)

const defaultAuditCapacity = 1024

// AuditLog keeps the most recent security events in memory. It backs the
// audit dispatcher when no database is configured.
type AuditLog struct {
	mu       sync.Mutex
	events   []domain.SecurityEvent
	capacity int
}

func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &AuditLog{capacity: capacity}
}

func (l *AuditLog) Insert(_ context.Context, ev domain.SecurityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == l.capacity {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (l *AuditLog) Events() []domain.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.SecurityEvent, len(l.events))
	copy(out, l.events)
	return out
}
