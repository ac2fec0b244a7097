// Package app assembles the gateway from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gomongo "go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/medisync/session-gateway/internal/api"
	"github.com/medisync/session-gateway/internal/api/handler"
	"github.com/medisync/session-gateway/internal/core/gate"
	"github.com/medisync/session-gateway/internal/core/ports"
	"github.com/medisync/session-gateway/internal/core/service"
	"github.com/medisync/session-gateway/internal/infrastructure/db/memory"
	"github.com/medisync/session-gateway/internal/infrastructure/db/mongo"
	"github.com/medisync/session-gateway/internal/infrastructure/db/redis"
	"github.com/medisync/session-gateway/internal/infrastructure/identity"
	"github.com/medisync/session-gateway/internal/infrastructure/queue"
	"github.com/medisync/session-gateway/internal/infrastructure/token"
	"github.com/medisync/session-gateway/internal/pkg/config"
)

const (
	serviceName     = "session-gateway"
	shutdownTimeout = 10 * time.Second
)

// Stores holds the persistence layer. The claims store is created once here
// and handed to every component that needs it.
type Stores struct {
	Claims   ports.ClaimsStore
	Profiles ports.ProfileStore
	Audit    *queue.Dispatcher
	Redis    *goredis.Client
	Ready    map[string]handler.Pinger

	mongo *gomongo.Client
}

// OpenStores connects to the configured backends and starts the audit
// dispatcher. Close releases them.
func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	s := &Stores{Ready: map[string]handler.Pinger{}}
	var auditRepo ports.AuditRepository

	switch cfg.Claims.Backend {
	case "memory":
		log.Warn().Msg("claims store is process-local; revocation does not reach other instances")
		s.Claims = memory.NewClaimsStore()
		auditRepo = memory.NewAuditLog(0)
	default:
		client, db, err := mongo.Connect(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  serviceName,
		})
		if err != nil {
			return nil, err
		}
		s.mongo = client
		if err := mongo.EnsureAuditIndexes(ctx, db); err != nil {
			log.Warn().Err(err).Msg("failed to ensure audit indexes")
		}
		s.Claims = mongo.NewClaimsRepository(db)
		s.Profiles = mongo.NewProfileRepository(db)
		s.Ready["mongodb"] = mongo.Pinger{Client: client}
		auditRepo = mongo.NewAuditRepository(db)
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.Redis = rdb
		s.Ready["redis"] = redis.Pinger{Client: rdb}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}

	s.Audit = queue.NewDispatcher(cfg.Audit.Workers, auditRepo, log)
	s.Audit.Start(ctx)
	return s, nil
}

// Close drains the audit queue and disconnects from the backends.
func (s *Stores) Close(ctx context.Context) {
	if s.Audit != nil {
		_ = s.Audit.Close(ctx)
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.mongo != nil {
		_ = s.mongo.Disconnect(ctx)
	}
}

// Services are the session operations built on the stores.
type Services struct {
	Issuer   *service.SessionIssuer
	Verifier *service.SessionVerifier
	Revoker  *service.SessionRevoker
	Claims   *service.ClaimsService
}

// NewRevocation builds only what revocation and claim changes need, for
// command-line use without an identity issuer.
func NewRevocation(s *Stores, log zerolog.Logger) (*service.SessionRevoker, *service.ClaimsService) {
	revoker := service.NewSessionRevoker(s.Claims, s.Audit, log)
	return revoker, service.NewClaimsService(s.Claims, revoker, s.Audit, log)
}

func NewServices(cfg *config.Config, s *Stores, log zerolog.Logger) (*Services, error) {
	codec, err := token.NewSessionCodec(cfg.Session.Secret, cfg.Session.Issuer)
	if err != nil {
		return nil, err
	}
	verifier, err := identity.NewJWKSVerifier(identity.Config{
		JWKSURL:  cfg.Identity.JWKSURL,
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		JWKSTTL:  cfg.Identity.JWKSTTL,
		Timeout:  cfg.Identity.Timeout,
	})
	if err != nil {
		return nil, err
	}

	revoker, claims := NewRevocation(s, log)
	return &Services{
		Issuer: service.NewSessionIssuer(verifier, s.Claims, codec, s.Audit, service.IssuerOptions{
			TTL:    cfg.Session.TTL,
			Policy: service.ProvisionPolicy(cfg.Session.ProvisionPolicy),
		}, log),
		Verifier: service.NewSessionVerifier(s.Claims, codec, s.Audit, nil, log),
		Revoker:  revoker,
		Claims:   claims,
	}, nil
}

// NewServer wires the HTTP surface.
func NewServer(cfg *config.Config, s *Stores, svc *Services, log zerolog.Logger) (*echo.Echo, error) {
	upstream, err := cfg.UpstreamURL()
	if err != nil {
		return nil, err
	}

	g := gate.New(gate.Config{
		LoginPath:   cfg.Gate.LoginPath,
		AppPath:     cfg.Gate.AppPath,
		ExemptPaths: cfg.Gate.ExemptPaths,
	})
	if exempt := g.ExemptPaths(); len(exempt) > 0 {
		log.Warn().Strs("paths", exempt).Msg("edge gate exempt paths configured")
	}

	var limiter ports.RateLimiter
	if s.Redis != nil && cfg.Limit.Requests > 0 {
		limiter = redis.NewRateLimiter(s.Redis, cfg.Limit.Requests, cfg.Limit.Window)
	} else {
		log.Warn().Msg("session issuance is not rate limited")
	}

	proxies, err := cfg.TrustedProxies()
	if err != nil {
		return nil, err
	}

	return api.NewRouter(api.Deps{
		Issuer:     svc.Issuer,
		Verifier:   svc.Verifier,
		Revoker:    svc.Revoker,
		Claims:     svc.Claims,
		Profiles:   s.Profiles,
		Gate:       g,
		Limiter:    limiter,
		Audit:      s.Audit,
		Ready:      s.Ready,
		Upstream:   upstream,
		Logger:     log,
		Production: cfg.IsProduction(),

		TrustedProxies: proxies,
	}), nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// drains the audit queue.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	svc, err := NewServices(cfg, stores, log)
	if err != nil {
		stores.Close(context.Background())
		return err
	}
	e, err := NewServer(cfg, stores, svc, log)
	if err != nil {
		stores.Close(context.Background())
		return err
	}

	address := fmt.Sprintf(":%s", cfg.Port)
	log.Info().Str("address", address).Str("env", cfg.Env).Msg("starting session gateway")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		stores.Close(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server exited properly")
	return nil
}
