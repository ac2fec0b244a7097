package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medisync/session-gateway/internal/api/metrics"
	"github.com/medisync/session-gateway/internal/api/sessioncookie"
	"github.com/medisync/session-gateway/internal/core/gate"
)

// EdgeGate applies the presence-only access decision before routing. It only
// looks at whether a non-empty session cookie exists.
func EdgeGate(g *gate.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}

			decision := g.Decide(req.URL.Path, sessioncookie.Read(c) != "")
			metrics.GateDecisionsTotal.WithLabelValues(decision.String()).Inc()

			switch decision {
			case gate.RedirectToLogin:
				return c.Redirect(http.StatusTemporaryRedirect, g.LoginRedirect(req.URL.RequestURI()))
			case gate.RedirectToApp:
				return c.Redirect(http.StatusTemporaryRedirect, g.AppPath())
			default:
				return next(c)
			}
		}
	}
}
