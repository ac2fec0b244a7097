package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medisync/session-gateway/internal/api/middleware"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// ctxSession extracts the session injected by RequireSession and fails fast
// when the middleware did not run.
func ctxSession(c echo.Context) (*ports.Session, error) {
	sess, ok := middleware.SessionFrom(c)
	if !ok || sess.Identity.UID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, middleware.MsgAuthRequired)
	}
	return sess, nil
}

// requestMeta collects the request attributes recorded with security events.
func requestMeta(c echo.Context) ports.RequestMeta {
	return ports.RequestMeta{
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		RemoteIP:  c.RealIP(),
	}
}
