package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// MinSessionSecretLen matches the minimum HMAC key the session codec accepts.
const MinSessionSecretLen = 32

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Session  SessionConfig
	Identity IdentityConfig
	Claims   ClaimsConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Limit    RateLimitConfig
	Gate     GateConfig
	Upstream UpstreamConfig
	Audit    AuditConfig
	Proxy    ProxyConfig
}

type SessionConfig struct {
	Secret          string        `env:"SESSION_SECRET"`
	TTL             time.Duration `env:"SESSION_TTL,              default=120h"`
	Issuer          string        `env:"SESSION_ISSUER,           default=session-gateway"`
	ProvisionPolicy string        `env:"SESSION_PROVISION_POLICY, default=default"`
}

type IdentityConfig struct {
	JWKSURL  string        `env:"IDP_JWKS_URL"`
	Issuer   string        `env:"IDP_ISSUER"`
	Audience string        `env:"IDP_AUDIENCE"`
	JWKSTTL  time.Duration `env:"IDP_JWKS_TTL, default=6h"`
	Timeout  time.Duration `env:"IDP_TIMEOUT,  default=5s"`
}

type ClaimsConfig struct {
	Backend string `env:"CLAIMS_BACKEND, default=mongo"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=session_gateway"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type RateLimitConfig struct {
	Requests int64         `env:"RATE_LIMIT_REQUESTS, default=100"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW,   default=15m"`
}

type GateConfig struct {
	LoginPath   string   `env:"GATE_LOGIN_PATH, default=/auth/login"`
	AppPath     string   `env:"GATE_APP_PATH,   default=/dashboard"`
	ExemptPaths []string `env:"GATE_EXEMPT_PATHS"`
}

type UpstreamConfig struct {
	URL string `env:"UPSTREAM_URL"`
}

// ProxyConfig lists the CIDRs allowed to set X-Forwarded-For. Left empty, the
// client address is always the TCP peer.
type ProxyConfig struct {
	Trusted []string `env:"TRUSTED_PROXIES"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Session.Secret) < MinSessionSecretLen {
		problems = append(problems, fmt.Sprintf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLen))
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	switch c.Session.ProvisionPolicy {
	case "default", "reject":
	default:
		problems = append(problems, fmt.Sprintf("SESSION_PROVISION_POLICY %q is not one of default, reject", c.Session.ProvisionPolicy))
	}

	if c.Identity.JWKSURL == "" {
		problems = append(problems, "IDP_JWKS_URL is required")
	}
	if c.Identity.Issuer == "" {
		problems = append(problems, "IDP_ISSUER is required")
	}
	if c.Identity.Audience == "" {
		problems = append(problems, "IDP_AUDIENCE is required")
	}

	switch c.Claims.Backend {
	case "mongo", "memory":
	default:
		problems = append(problems, fmt.Sprintf("CLAIMS_BACKEND %q is not one of mongo, memory", c.Claims.Backend))
	}
	if c.Claims.Backend == "memory" && c.IsProduction() {
		problems = append(problems, "CLAIMS_BACKEND=memory is not allowed in production")
	}

	if c.Limit.Requests < 0 || c.Limit.Window <= 0 {
		problems = append(problems, "RATE_LIMIT_REQUESTS must be >= 0 and RATE_LIMIT_WINDOW positive")
	}
	if !strings.HasPrefix(c.Gate.LoginPath, "/") || !strings.HasPrefix(c.Gate.AppPath, "/") {
		problems = append(problems, "GATE_LOGIN_PATH and GATE_APP_PATH must be absolute paths")
	}
	for _, p := range c.Gate.ExemptPaths {
		if !strings.HasPrefix(p, "/") {
			problems = append(problems, fmt.Sprintf("GATE_EXEMPT_PATHS entry %q must be an absolute path", p))
		}
	}

	if c.Upstream.URL != "" {
		if _, err := c.UpstreamURL(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if _, err := c.TrustedProxies(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// UpstreamURL parses UPSTREAM_URL. It returns nil when no upstream is set.
func (c *Config) UpstreamURL() (*url.URL, error) {
	if c.Upstream.URL == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("UPSTREAM_URL %q must be an absolute http(s) URL", c.Upstream.URL)
	}
	return u, nil
}

// TrustedProxies parses TRUSTED_PROXIES.
func (c *Config) TrustedProxies() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.Proxy.Trusted))
	for _, cidr := range c.Proxy.Trusted {
		_, n, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q is not a CIDR", cidr)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
