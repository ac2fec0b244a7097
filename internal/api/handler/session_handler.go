package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisync/session-gateway/internal/api/metrics"
	"github.com/medisync/session-gateway/internal/api/sessioncookie"
	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// SessionHandler exposes session issuance, inspection, validation and logout.
type SessionHandler struct {
	issuer   ports.SessionIssuer
	verifier ports.SessionVerifier
	revoker  ports.SessionRevoker
	profiles ports.ProfileStore
	cookies  sessioncookie.Jar
	log      zerolog.Logger
}

func NewSessionHandler(
	issuer ports.SessionIssuer,
	verifier ports.SessionVerifier,
	revoker ports.SessionRevoker,
	profiles ports.ProfileStore,
	cookies sessioncookie.Jar,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		issuer:   issuer,
		verifier: verifier,
		revoker:  revoker,
		profiles: profiles,
		cookies:  cookies,
		log:      log,
	}
}

// Create exchanges an identity token for a session cookie.
//
// @Summary      Create a session
// @Description  Verifies the identity token with the issuer and sets the __session cookie.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      createSessionRequest  true  "Identity token"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/auth/session [post]
func (h *SessionHandler) Create(c echo.Context) error {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(strings.ToLower(ct), echo.MIMEApplicationJSON) {
		metrics.SessionIssueFailuresTotal.WithLabelValues("invalid_input").Inc()
		return invalidInput("Content-Type must be application/json")
	}

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		metrics.SessionIssueFailuresTotal.WithLabelValues("invalid_input").Inc()
		return invalidInput("invalid request data", FieldIssue{Field: "body", Message: "body must be a JSON object"})
	}
	if err := c.Validate(&req); err != nil {
		metrics.SessionIssueFailuresTotal.WithLabelValues("invalid_input").Inc()
		return err
	}

	issued, err := h.issuer.Issue(c.Request().Context(), req.IDToken, requestMeta(c))
	if err != nil {
		metrics.SessionIssueFailuresTotal.WithLabelValues(issueFailureReason(err)).Inc()
		return err
	}

	h.cookies.Write(c, issued.Token, issued.MaxAge)
	metrics.SessionsIssuedTotal.Inc()
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func issueFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrNotProvisioned):
		return "not_provisioned"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream"
	default:
		return "internal"
	}
}

// Current returns the verified session and, when available, the profile.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  currentSessionResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/auth/session [get]
func (h *SessionHandler) Current(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}

	resp := currentSessionResponse{
		UID:       sess.Identity.UID,
		Email:     sess.Identity.Email,
		Name:      sess.Identity.Name,
		TenantID:  tenantPtr(sess.Claims),
		Role:      string(sess.Claims.Role),
		IssuedAt:  sess.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	}

	if h.profiles != nil {
		p, err := h.profiles.GetProfile(c.Request().Context(), sess.Identity.UID)
		switch {
		case err == nil:
			resp.Profile = &profileResponse{
				Name:       p.Name,
				Email:      p.Email,
				ClinicID:   p.ClinicID,
				ClinicName: p.ClinicName,
				PhotoURL:   p.PhotoURL,
			}
		case errors.Is(err, domain.ErrProfileNotFound):
		default:
			h.log.Warn().Err(err).Str("uid", sess.Identity.UID).Msg("profile lookup failed")
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// Validate is the forward-auth endpoint for an upstream UI server.
//
// @Summary      Validate session
// @Description  Returns 200 with X-Session-Uid, X-Session-Tenant and X-Session-Role headers, or 401.
// @Tags         auth
// @Success      200
// @Failure      401  {object}  errorResponse
// @Router       /api/auth/validate [get]
func (h *SessionHandler) Validate(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	setIdentityHeaders(c.Response().Header(), sess)
	return c.NoContent(http.StatusOK)
}

// Logout revokes every session of the caller and clears the cookie. The
// cookie is cleared even when the presented session is no longer valid.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  successResponse
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /api/auth/logout [post]
func (h *SessionHandler) Logout(c echo.Context) error {
	h.cookies.Clear(c)

	sess, err := h.verifier.Verify(c.Request().Context(), sessioncookie.Read(c))
	metrics.SessionVerificationsTotal.WithLabelValues(domain.FailureReason(err)).Inc()
	if err != nil {
		return err
	}

	if err := h.revoker.Revoke(c.Request().Context(), sess.Identity.UID, requestMeta(c)); err != nil {
		return err
	}
	metrics.SessionRevocationsTotal.WithLabelValues("logout").Inc()
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func tenantPtr(c domain.Claims) *string {
	if !c.HasTenant() {
		return nil
	}
	t := c.TenantID
	return &t
}

// Identity headers passed to upstream servers.
const (
	HeaderSessionUID    = "X-Session-Uid"
	HeaderSessionTenant = "X-Session-Tenant"
	HeaderSessionRole   = "X-Session-Role"
)

func setIdentityHeaders(h http.Header, sess *ports.Session) {
	h.Set(HeaderSessionUID, sess.Identity.UID)
	h.Set(HeaderSessionTenant, sess.Claims.TenantID)
	h.Set(HeaderSessionRole, string(sess.Claims.Role))
}
