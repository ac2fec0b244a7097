package api

import (
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/medisync/session-gateway/docs"
	"github.com/medisync/session-gateway/internal/api/handler"
	"github.com/medisync/session-gateway/internal/api/middleware"
	"github.com/medisync/session-gateway/internal/api/sessioncookie"
	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/gate"
	"github.com/medisync/session-gateway/internal/core/ports"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Issuer   ports.SessionIssuer
	Verifier ports.SessionVerifier
	Revoker  ports.SessionRevoker
	Claims   ports.ClaimsService
	Profiles ports.ProfileStore
	Gate     *gate.Gate
	Limiter  ports.RateLimiter
	Audit    ports.AuditRecorder
	Ready    map[string]handler.Pinger
	Upstream *url.URL
	Logger   zerolog.Logger

	// Production enables Secure cookies and HSTS.
	Production bool

	// TrustedProxies are the networks whose X-Forwarded-For is believed.
	// Empty means the client address is the TCP peer.
	TrustedProxies []*net.IPNet

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)
	e.IPExtractor = ipExtractor(d.TrustedProxies)

	// --- Pre-routing middleware ---
	e.Pre(echomiddleware.Recover())
	e.Pre(echomiddleware.RequestID())
	e.Pre(requestLogger(d.Logger))
	e.Pre(middleware.SecurityHeaders(d.Production))
	e.Pre(middleware.EdgeGate(d.Gate))

	// --- Global middleware ---
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "session_gateway",
		Registerer: d.Registerer,
	}))

	// --- Dependencies ---
	jar := sessioncookie.Jar{Secure: d.Production}
	requireSession := middleware.RequireSession(d.Verifier, jar)
	requirePageSession := middleware.RequirePageSession(d.Verifier, jar, d.Gate)
	sessionHandler := handler.NewSessionHandler(d.Issuer, d.Verifier, d.Revoker, d.Profiles, jar, d.Logger)
	claimsHandler := handler.NewClaimsHandler(d.Claims)
	pageHandler := handler.NewPageHandler(d.Upstream)

	// --- Auth routes ---
	auth := e.Group("/api/auth")
	auth.POST("/session", sessionHandler.Create, middleware.RateLimit(d.Limiter, "session_issue", d.Audit, d.Logger))
	auth.GET("/session", sessionHandler.Current, requireSession)
	auth.GET("/validate", sessionHandler.Validate, requireSession)
	auth.POST("/logout", sessionHandler.Logout)
	auth.POST("/claims", claimsHandler.Set,
		requireSession,
		middleware.RBAC(domain.RoleAdmin),
		middleware.RequireTenant(),
	)

	// --- Pages ---
	for _, p := range handler.ProtectedPages {
		e.GET(p, pageHandler.Serve, requirePageSession)
		e.GET(p+"/*", pageHandler.Serve, requirePageSession)
	}
	e.GET(d.Gate.LoginPath(), pageHandler.ServePublic)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.Ready)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: d.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// ipExtractor only honours X-Forwarded-For from trusted proxies. Without any,
// the TCP peer is the client so a forged header cannot dodge rate limits.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Str("remote_ip", v.RemoteIP).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request completed")
			return nil
		},
	})
}
