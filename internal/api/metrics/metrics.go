// Package metrics defines and registers all custom Prometheus metrics for the
// session gateway. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// initialisation; HTTP request metrics are added by echoprometheus in the
// router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "session_gateway"

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsIssuedTotal counts artifacts handed out by the issuance endpoint.
var SessionsIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_issued_total",
		Help:      "Total number of session artifacts issued.",
	},
)

// SessionIssueFailuresTotal counts failed issuance attempts.
// Label:
//   - reason: "invalid_input", "invalid_token", "not_provisioned", "upstream", "internal"
var SessionIssueFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_issue_failures_total",
		Help:      "Total number of failed session issuance attempts, by reason.",
	},
	[]string{"reason"},
)

// SessionVerificationsTotal counts tier-2 verification outcomes.
// Label:
//   - result: "ok", "missing", "expired", "revoked", "signature_invalid", "malformed", "store_error"
var SessionVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_verifications_total",
		Help:      "Total number of session verifications, by result.",
	},
	[]string{"result"},
)

// SessionRevocationsTotal counts revocation requests.
// Label:
//   - trigger: "logout", "claims_change", "cli"
var SessionRevocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_revocations_total",
		Help:      "Total number of revocation requests, by trigger.",
	},
	[]string{"trigger"},
)

// ── Gate metrics ──────────────────────────────────────────────────────────────

// GateDecisionsTotal counts edge gate decisions.
// Label:
//   - decision: "allow", "redirect_login", "redirect_app"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of edge gate decisions, by outcome.",
	},
	[]string{"decision"},
)

// RateLimitedTotal counts requests refused by the rate limiter.
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter, by scope.",
	},
	[]string{"scope"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// SecurityEventsTotal counts security events accepted by the audit dispatcher.
// Label:
//   - type: the security event type (e.g. "session_issued")
var SecurityEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_total",
		Help:      "Total number of security events recorded, by type.",
	},
	[]string{"type"},
)

// SecurityEventsDroppedTotal counts events discarded because a worker queue
// was full or the dispatcher was closed.
var SecurityEventsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_dropped_total",
		Help:      "Total number of security events dropped before persistence, by type.",
	},
	[]string{"type"},
)

// AuditQueueDepth tracks the number of events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of security events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditWriteDuration measures how long persisting one security event takes.
var AuditWriteDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "audit_write_duration_seconds",
		Help:      "Duration of security event persistence.",
		Buckets:   prometheus.DefBuckets,
	},
)
