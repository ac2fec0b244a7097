package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisync/session-gateway/internal/api/metrics"
	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// RateLimit counts requests per client IP in scope. A limiter failure is
// logged and the request is let through, so an unavailable Redis never locks
// users out of sign-in.
func RateLimit(limiter ports.RateLimiter, scope string, audit ports.AuditRecorder, log zerolog.Logger) echo.MiddlewareFunc {
	if audit == nil {
		audit = ports.NopAudit{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}

			decision, err := limiter.Allow(c.Request().Context(), scope, c.RealIP())
			if err != nil {
				log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			if !decision.Allowed {
				metrics.RateLimitedTotal.WithLabelValues(scope).Inc()
				audit.Record(domain.SecurityEvent{
					Type:      domain.EventRateLimitExceeded,
					Reason:    scope,
					RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
					RemoteIP:  c.RealIP(),
				})
				h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			}
			return next(c)
		}
	}
}
