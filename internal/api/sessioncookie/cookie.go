// Package sessioncookie reads and writes the session cookie at the HTTP edge.
package sessioncookie

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// Jar writes the session cookie with fixed attributes. Secure is enabled in
// production only so that local development over plain HTTP keeps working.
type Jar struct {
	Secure bool
}

// Write sets the artifact cookie. maxAge equals the artifact lifetime.
func (j Jar) Write(c echo.Context, token string, maxAge time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     domain.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the cookie in the browser.
func (j Jar) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     domain.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the cookie value, or "" when the cookie is absent or empty.
func Read(c echo.Context) string {
	ck, err := c.Cookie(domain.SessionCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
