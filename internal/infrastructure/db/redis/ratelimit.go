package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medisync/session-gateway/internal/core/ports"
)

// RateLimiter is a fixed-window counter shared by every gateway instance.
// Key format: ratelimit:<scope>:<identifier>:<window_start_unix>
type RateLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	now    func() time.Time
}

var _ ports.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(client redis.UniversalClient, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow counts one request for identifier in scope and reports whether it is
// within the limit of the current window.
func (l *RateLimiter) Allow(ctx context.Context, scope, identifier string) (ports.RateDecision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, identifier, start.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.RateDecision{Allowed: true, Limit: l.limit}, fmt.Errorf("rate limit: %w", err)
	}

	count := incr.Val()
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return ports.RateDecision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   start.Add(l.window),
	}, nil
}
