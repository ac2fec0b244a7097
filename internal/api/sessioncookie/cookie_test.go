package sessioncookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisync/session-gateway/internal/core/domain"
)

func TestJar_Write(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	Jar{Secure: true}.Write(c, "tok", 5*24*time.Hour)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, domain.SessionCookieName, ck.Name)
	assert.Equal(t, "tok", ck.Value)
	assert.Equal(t, 432000, ck.MaxAge)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, "/", ck.Path)
}

func TestJar_Clear(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	Jar{}.Clear(c)

	header := rec.Header().Get("Set-Cookie")
	assert.Contains(t, header, domain.SessionCookieName+"=;")
	assert.Contains(t, header, "Max-Age=0")
	assert.NotContains(t, header, "Secure")
}

func TestRead(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", Read(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: domain.SessionCookieName, Value: "abc"})
	assert.Equal(t, "abc", Read(e.NewContext(req, httptest.NewRecorder())))
}
