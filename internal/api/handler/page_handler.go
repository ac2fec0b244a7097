package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

// ProtectedPages are the application routes served behind both gate tiers.
var ProtectedPages = []string{
	"/dashboard",
	"/inventory",
	"/patients",
	"/shipments",
	"/history",
	"/pharmanet",
	"/rxai",
	"/settings",
	"/profile",
}

// PageHandler serves protected pages. With an upstream configured the request
// is proxied there carrying the verified identity headers; otherwise a JSON
// shell describing the page and session is returned.
type PageHandler struct {
	proxy echo.HandlerFunc
}

// NewPageHandler builds a page handler. A nil upstream selects the JSON shell.
func NewPageHandler(upstream *url.URL) *PageHandler {
	h := &PageHandler{}
	if upstream != nil {
		balancer := echomiddleware.NewRoundRobinBalancer([]*echomiddleware.ProxyTarget{{URL: upstream}})
		proxy := echomiddleware.ProxyWithConfig(echomiddleware.ProxyConfig{Balancer: balancer})
		h.proxy = proxy(func(echo.Context) error { return nil })
	}
	return h
}

// Serve renders a protected page.
//
// @Summary      Protected page
// @Tags         pages
// @Produce      json
// @Param        page  path      string  true  "Page name"
// @Success      200   {object}  pageShellResponse
// @Failure      401   {object}  errorResponse
// @Router       /{page} [get]
func (h *PageHandler) Serve(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}

	if h.proxy != nil {
		// Identity headers from the client are never trusted.
		setIdentityHeaders(c.Request().Header, sess)
		return h.proxy(c)
	}

	return c.JSON(http.StatusOK, pageShellResponse{
		Page:     pageName(c),
		UID:      sess.Identity.UID,
		TenantID: tenantPtr(sess.Claims),
		Role:     string(sess.Claims.Role),
	})
}

// ServePublic renders a page that needs no session, such as the login page.
// Identity headers are stripped before proxying.
func (h *PageHandler) ServePublic(c echo.Context) error {
	if h.proxy != nil {
		hdr := c.Request().Header
		hdr.Del(HeaderSessionUID)
		hdr.Del(HeaderSessionTenant)
		hdr.Del(HeaderSessionRole)
		return h.proxy(c)
	}
	return c.JSON(http.StatusOK, map[string]string{"page": pageName(c)})
}

func pageName(c echo.Context) string {
	page := strings.TrimPrefix(strings.TrimSuffix(c.Request().URL.Path, "/"), "/")
	if i := strings.IndexByte(page, '/'); i >= 0 {
		page = page[:i]
	}
	return page
}
