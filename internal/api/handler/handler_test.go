package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisync/session-gateway/internal/api/middleware"
	"github.com/medisync/session-gateway/internal/api/sessioncookie"
	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// --- stubs ---

type stubIssuer struct {
	issueFn func(ctx context.Context, idToken string, meta ports.RequestMeta) (*ports.IssuedSession, error)
}

func (s *stubIssuer) Issue(ctx context.Context, idToken string, meta ports.RequestMeta) (*ports.IssuedSession, error) {
	return s.issueFn(ctx, idToken, meta)
}

type stubVerifier struct {
	verifyFn func(ctx context.Context, raw string) (*ports.Session, error)
}

func (s *stubVerifier) Verify(ctx context.Context, raw string) (*ports.Session, error) {
	return s.verifyFn(ctx, raw)
}

type stubRevoker struct {
	revoked []string
	err     error
}

func (s *stubRevoker) Revoke(_ context.Context, uid string, _ ports.RequestMeta) error {
	s.revoked = append(s.revoked, uid)
	return s.err
}

type stubProfiles struct {
	profile *domain.Profile
	err     error
}

func (s *stubProfiles) GetProfile(context.Context, string) (*domain.Profile, error) {
	return s.profile, s.err
}

type stubClaimsService struct {
	got ports.SetClaimsInput
	err error
}

func (s *stubClaimsService) SetClaims(_ context.Context, in ports.SetClaimsInput) (*domain.ClaimsRecord, error) {
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ClaimsRecord{UID: in.UID, Claims: in.Claims}, nil
}

func (s *stubClaimsService) GetClaims(context.Context, string) (*domain.ClaimsRecord, error) {
	return nil, domain.ErrClaimsNotFound
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// --- helpers ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSession() *ports.Session {
	return &ports.Session{
		ID:        "sid-1",
		Identity:  domain.Identity{UID: "u1", Email: "ana@clinic.test", Name: "Ana"},
		Claims:    domain.Claims{TenantID: "clinic-1", Role: domain.RoleAdmin},
		IssuedAt:  testNow,
		ExpiresAt: testNow.Add(domain.DefaultSessionTTL),
	}
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withSession(c echo.Context, sess *ports.Session) {
	c.Set(middleware.CtxSession, sess)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == domain.SessionCookieName {
			return ck
		}
	}
	t.Fatalf("no %s cookie in response", domain.SessionCookieName)
	return nil
}

func newSessionHandler(issuer ports.SessionIssuer, verifier ports.SessionVerifier, revoker ports.SessionRevoker, profiles ports.ProfileStore) *SessionHandler {
	return NewSessionHandler(issuer, verifier, revoker, profiles, sessioncookie.Jar{Secure: true}, zerolog.Nop())
}

// --- Create ---

func TestCreate_SetsCookie(t *testing.T) {
	issuer := &stubIssuer{issueFn: func(_ context.Context, idToken string, _ ports.RequestMeta) (*ports.IssuedSession, error) {
		assert.Equal(t, "a.b.c", idToken)
		return &ports.IssuedSession{Token: "artifact", MaxAge: domain.DefaultSessionTTL}, nil
	}}
	h := newSessionHandler(issuer, nil, nil, nil)

	c, rec := newContext(http.MethodPost, "/api/auth/session", `{"idToken":"a.b.c"}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	ck := sessionCookie(t, rec)
	assert.Equal(t, "artifact", ck.Value)
	assert.Equal(t, int(domain.DefaultSessionTTL.Seconds()), ck.MaxAge)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
}

func TestCreate_RequiresJSON(t *testing.T) {
	h := newSessionHandler(nil, nil, nil, nil)
	c, _ := newContext(http.MethodPost, "/api/auth/session", "")
	c.Request().Header.Set(echo.HeaderContentType, echo.MIMETextPlain)

	err := h.Create(c)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreate_MissingToken(t *testing.T) {
	h := newSessionHandler(nil, nil, nil, nil)
	c, _ := newContext(http.MethodPost, "/api/auth/session", `{}`)

	err := h.Create(c)
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Details, 1)
	assert.Equal(t, "idToken", ie.Details[0].Field)
}

func TestCreate_IssuerErrorPassesThrough(t *testing.T) {
	issuer := &stubIssuer{issueFn: func(context.Context, string, ports.RequestMeta) (*ports.IssuedSession, error) {
		return nil, domain.ErrNotProvisioned
	}}
	h := newSessionHandler(issuer, nil, nil, nil)
	c, rec := newContext(http.MethodPost, "/api/auth/session", `{"idToken":"a.b.c"}`)

	assert.ErrorIs(t, h.Create(c), domain.ErrNotProvisioned)
	assert.Empty(t, rec.Result().Cookies())
}

// --- Current ---

func TestCurrent_WithProfile(t *testing.T) {
	profiles := &stubProfiles{profile: &domain.Profile{UID: "u1", Name: "Ana", ClinicName: "Norte"}}
	h := newSessionHandler(nil, nil, nil, profiles)
	c, rec := newContext(http.MethodGet, "/api/auth/session", "")
	withSession(c, testSession())

	require.NoError(t, h.Current(c))

	var body currentSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.UID)
	require.NotNil(t, body.TenantID)
	assert.Equal(t, "clinic-1", *body.TenantID)
	assert.Equal(t, "admin", body.Role)
	assert.Equal(t, "2026-03-01T12:00:00Z", body.IssuedAt)
	require.NotNil(t, body.Profile)
	assert.Equal(t, "Norte", body.Profile.ClinicName)
}

func TestCurrent_ProfileIsBestEffort(t *testing.T) {
	for _, perr := range []error{domain.ErrProfileNotFound, errors.New("mongo down")} {
		h := newSessionHandler(nil, nil, nil, &stubProfiles{err: perr})
		c, rec := newContext(http.MethodGet, "/api/auth/session", "")
		sess := testSession()
		sess.Claims = domain.DefaultClaims()
		withSession(c, sess)

		require.NoError(t, h.Current(c))
		assert.Contains(t, rec.Body.String(), `"profile":null`)
		assert.Contains(t, rec.Body.String(), `"tenantId":null`)
	}
}

func TestCurrent_WithoutSession(t *testing.T) {
	h := newSessionHandler(nil, nil, nil, nil)
	c, _ := newContext(http.MethodGet, "/api/auth/session", "")

	var he *echo.HTTPError
	require.ErrorAs(t, h.Current(c), &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

// --- Validate ---

func TestValidate_SetsIdentityHeaders(t *testing.T) {
	h := newSessionHandler(nil, nil, nil, nil)
	c, rec := newContext(http.MethodGet, "/api/auth/validate", "")
	withSession(c, testSession())

	require.NoError(t, h.Validate(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Header().Get(HeaderSessionUID))
	assert.Equal(t, "clinic-1", rec.Header().Get(HeaderSessionTenant))
	assert.Equal(t, "admin", rec.Header().Get(HeaderSessionRole))
}

// --- Logout ---

func TestLogout_RevokesAndClears(t *testing.T) {
	verifier := &stubVerifier{verifyFn: func(context.Context, string) (*ports.Session, error) { return testSession(), nil }}
	revoker := &stubRevoker{}
	h := newSessionHandler(nil, verifier, revoker, nil)

	c, rec := newContext(http.MethodPost, "/api/auth/logout", "")
	c.Request().AddCookie(&http.Cookie{Name: domain.SessionCookieName, Value: "artifact"})

	require.NoError(t, h.Logout(c))
	assert.Equal(t, []string{"u1"}, revoker.revoked)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
}

func TestLogout_InvalidSessionStillClearsCookie(t *testing.T) {
	verifier := &stubVerifier{verifyFn: func(context.Context, string) (*ports.Session, error) { return nil, domain.ErrRevoked }}
	revoker := &stubRevoker{}
	h := newSessionHandler(nil, verifier, revoker, nil)

	c, rec := newContext(http.MethodPost, "/api/auth/logout", "")
	c.Request().AddCookie(&http.Cookie{Name: domain.SessionCookieName, Value: "stale"})

	assert.ErrorIs(t, h.Logout(c), domain.ErrUnauthenticated)
	assert.Empty(t, revoker.revoked)
	ck := sessionCookie(t, rec)
	assert.Equal(t, "", ck.Value)
	assert.Equal(t, -1, ck.MaxAge)
}

// --- Claims ---

func TestClaimsSet_PassesActorFromSession(t *testing.T) {
	svc := &stubClaimsService{}
	h := NewClaimsHandler(svc)
	c, rec := newContext(http.MethodPost, "/api/auth/claims", `{"uid":"u2","tenantId":"clinic-1","role":"staff"}`)
	withSession(c, testSession())

	require.NoError(t, h.Set(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", svc.got.ActorUID)
	require.NotNil(t, svc.got.Actor)
	assert.Equal(t, "clinic-1", svc.got.Actor.TenantID)
	assert.Equal(t, "u2", svc.got.UID)
	assert.Equal(t, domain.RoleStaff, svc.got.Claims.Role)
	assert.False(t, svc.got.KeepSessions)
}

func TestClaimsSet_Validation(t *testing.T) {
	h := NewClaimsHandler(&stubClaimsService{})
	c, _ := newContext(http.MethodPost, "/api/auth/claims", `{"uid":"u2","role":"owner"}`)
	withSession(c, testSession())

	var ie *InputError
	require.ErrorAs(t, h.Set(c), &ie)
	fields := map[string]bool{}
	for _, d := range ie.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["tenantId"])
	assert.True(t, fields["role"])
}

func TestClaimsSet_ForbiddenPassesThrough(t *testing.T) {
	h := NewClaimsHandler(&stubClaimsService{err: domain.ErrForbidden})
	c, _ := newContext(http.MethodPost, "/api/auth/claims", `{"uid":"u2","tenantId":"clinic-2"}`)
	withSession(c, testSession())

	assert.ErrorIs(t, h.Set(c), domain.ErrForbidden)
}

// --- Pages ---

func TestPage_ShellWithoutUpstream(t *testing.T) {
	h := NewPageHandler(nil)
	c, rec := newContext(http.MethodGet, "/patients/42", "")
	withSession(c, testSession())

	require.NoError(t, h.Serve(c))
	assert.JSONEq(t, `{"page":"patients","uid":"u1","tenantId":"clinic-1","role":"admin"}`, rec.Body.String())
}

func TestPage_ProxyOverridesIdentityHeaders(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("<html>dashboard</html>"))
	}))
	defer upstream.Close()
	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	h := NewPageHandler(u)
	c, rec := newContext(http.MethodGet, "/dashboard", "")
	c.Request().Header.Set(HeaderSessionUID, "forged")
	withSession(c, testSession())

	require.NoError(t, h.Serve(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>dashboard</html>", rec.Body.String())
	assert.Equal(t, "u1", got.Get(HeaderSessionUID))
	assert.Equal(t, "clinic-1", got.Get(HeaderSessionTenant))
}

func TestPublicPage_StripsIdentityHeaders(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer upstream.Close()
	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	h := NewPageHandler(u)
	c, _ := newContext(http.MethodGet, "/auth/login", "")
	c.Request().Header.Set(HeaderSessionRole, "admin")

	require.NoError(t, h.ServePublic(c))
	assert.Empty(t, got.Get(HeaderSessionRole))
}

// --- Health ---

func TestReadiness(t *testing.T) {
	h := NewHealthDependenciesHandler(map[string]Pinger{
		"mongodb": stubPinger{},
		"redis":   stubPinger{err: errors.New("connection refused")},
	})
	c, rec := newContext(http.MethodGet, "/health/ready", "")

	require.NoError(t, h.Readiness(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["mongodb"].Status)
	assert.Equal(t, "connection refused", body.Dependencies["redis"].Error)
}

func TestLiveness(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/health", "")
	require.NoError(t, NewHealthHandler().Liveness(c))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
