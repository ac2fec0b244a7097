package domain

import "time"

// SecurityEventType names an auditable step of the session lifecycle.
type SecurityEventType string

const (
	EventSessionIssued       SecurityEventType = "session_issued"
	EventSessionRejected     SecurityEventType = "session_rejected"
	EventSessionRevoked      SecurityEventType = "session_revoked"
	EventVerificationFailed  SecurityEventType = "verification_failed"
	EventClaimsChanged       SecurityEventType = "claims_changed"
	EventIdentityProvisioned SecurityEventType = "identity_provisioned"
	EventRateLimitExceeded   SecurityEventType = "rate_limit_exceeded"
)

// SecurityEvent is one row of the security audit trail.
type SecurityEvent struct {
	Type       SecurityEventType
	UID        string
	ActorUID   string // who triggered it, when different from UID
	SessionID  string
	Reason     string
	RequestID  string
	RemoteIP   string
	Attributes map[string]string
	OccurredAt time.Time
}
