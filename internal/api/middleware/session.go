package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medisync/session-gateway/internal/api/metrics"
	"github.com/medisync/session-gateway/internal/api/sessioncookie"
	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/gate"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// Context keys set by RequireSession.
const (
	CtxSession  = "session"
	CtxUID      = "uid"
	CtxTenantID = "tenant_id"
	CtxRole     = "role"
)

// MsgAuthRequired is the only message returned for failed verification, so
// that clients cannot tell an expired session from a revoked one.
const MsgAuthRequired = "authentication required"

// RequireSession verifies the session cookie on every request and injects the
// embedded claims into the context. It is the second tier behind the edge
// gate and must be mounted on every protected route. A rejected cookie is
// cleared so the edge gate stops treating the browser as signed in.
func RequireSession(verifier ports.SessionVerifier, jar sessioncookie.Jar) echo.MiddlewareFunc {
	return requireSession(verifier, jar, func(echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, MsgAuthRequired)
	})
}

// RequirePageSession is RequireSession for browser pages: a rejected session
// is sent to the login page instead of receiving a JSON 401.
func RequirePageSession(verifier ports.SessionVerifier, jar sessioncookie.Jar, g *gate.Gate) echo.MiddlewareFunc {
	return requireSession(verifier, jar, func(c echo.Context) error {
		return c.Redirect(http.StatusTemporaryRedirect, g.LoginRedirect(c.Request().URL.RequestURI()))
	})
}

func requireSession(verifier ports.SessionVerifier, jar sessioncookie.Jar, reject echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := sessioncookie.Read(c)
			sess, err := verifier.Verify(c.Request().Context(), raw)
			metrics.SessionVerificationsTotal.WithLabelValues(domain.FailureReason(err)).Inc()
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					if raw != "" {
						jar.Clear(c)
					}
					return reject(c)
				}
				return err
			}

			c.Set(CtxSession, sess)
			c.Set(CtxUID, sess.Identity.UID)
			c.Set(CtxTenantID, sess.Claims.TenantID)
			c.Set(CtxRole, string(sess.Claims.Role))

			return next(c)
		}
	}
}

// SessionFrom returns the session injected by RequireSession.
func SessionFrom(c echo.Context) (*ports.Session, bool) {
	sess, ok := c.Get(CtxSession).(*ports.Session)
	return sess, ok && sess != nil
}
