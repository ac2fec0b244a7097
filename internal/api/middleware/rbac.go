package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// RBAC enforces role-based access control on the role embedded in the
// session.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[string(r)] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxRole).(string)
			if _, ok := allowed[role]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireTenant rejects sessions that are not yet assigned to a clinic.
func RequireTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenant, _ := c.Get(CtxTenantID).(string)
			if tenant == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "no clinic assigned"})
			}
			return next(c)
		}
	}
}
