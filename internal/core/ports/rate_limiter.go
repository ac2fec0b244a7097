package ports

import (
	"context"
	"time"
)

// RateDecision is the outcome of counting one request.
type RateDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimiter counts requests per scope and caller identifier.
type RateLimiter interface {
	Allow(ctx context.Context, scope, identifier string) (RateDecision, error)
}
