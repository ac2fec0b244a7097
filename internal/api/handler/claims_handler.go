package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medisync/session-gateway/internal/api/metrics"
	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// ClaimsHandler lets a clinic administrator assign claims within the clinic.
type ClaimsHandler struct {
	service ports.ClaimsService
}

func NewClaimsHandler(service ports.ClaimsService) *ClaimsHandler {
	return &ClaimsHandler{service: service}
}

// Set assigns tenant and role to an identity. Existing sessions of that
// identity are revoked unless keepSessions is true, in which case they keep
// their old claims until they expire.
//
// @Summary      Set claims
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      setClaimsRequest  true  "Claims assignment"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/auth/claims [post]
func (h *ClaimsHandler) Set(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}

	var req setClaimsRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput("invalid request data", FieldIssue{Field: "body", Message: "body must be a JSON object"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	actor := sess.Claims
	_, err = h.service.SetClaims(c.Request().Context(), ports.SetClaimsInput{
		ActorUID:     sess.Identity.UID,
		Actor:        &actor,
		UID:          req.UID,
		Claims:       domain.Claims{TenantID: req.TenantID, Role: domain.Role(req.Role)},
		KeepSessions: req.KeepSessions,
		Meta:         requestMeta(c),
	})
	if err != nil {
		return err
	}
	if !req.KeepSessions {
		metrics.SessionRevocationsTotal.WithLabelValues("claims_change").Inc()
	}

	return c.JSON(http.StatusOK, successResponse{Success: true})
}
