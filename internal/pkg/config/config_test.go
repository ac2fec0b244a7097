package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv() map[string]string {
	return map[string]string{
		"SESSION_SECRET": "0123456789abcdef0123456789abcdef",
		"IDP_JWKS_URL":   "https://idp.example.com/.well-known/jwks.json",
		"IDP_ISSUER":     "https://idp.example.com/clinic",
		"IDP_AUDIENCE":   "clinic",
	}
}

func loadMap(t *testing.T, env map[string]string) *Config {
	t.Helper()
	cfg, err := load(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadMap(t, validEnv())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 120*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "default", cfg.Session.ProvisionPolicy)
	assert.Equal(t, "mongo", cfg.Claims.Backend)
	assert.Equal(t, int64(100), cfg.Limit.Requests)
	assert.Equal(t, 15*time.Minute, cfg.Limit.Window)
	assert.Equal(t, "/auth/login", cfg.Gate.LoginPath)
	assert.Empty(t, cfg.Gate.ExemptPaths)
	assert.Empty(t, cfg.Proxy.Trusted)
	assert.False(t, cfg.IsProduction())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExemptPathsList(t *testing.T) {
	env := validEnv()
	env["GATE_EXEMPT_PATHS"] = "/status,/legal"

	cfg := loadMap(t, env)
	assert.Equal(t, []string{"/status", "/legal"}, cfg.Gate.ExemptPaths)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(env map[string]string)
		wantErr string
	}{
		{"weak secret", func(e map[string]string) { e["SESSION_SECRET"] = "short" }, "SESSION_SECRET"},
		{"unknown policy", func(e map[string]string) { e["SESSION_PROVISION_POLICY"] = "auto" }, "SESSION_PROVISION_POLICY"},
		{"unknown backend", func(e map[string]string) { e["CLAIMS_BACKEND"] = "postgres" }, "CLAIMS_BACKEND"},
		{"memory in production", func(e map[string]string) {
			e["CLAIMS_BACKEND"] = "memory"
			e["ENV"] = "production"
		}, "not allowed in production"},
		{"missing audience", func(e map[string]string) { delete(e, "IDP_AUDIENCE") }, "IDP_AUDIENCE"},
		{"relative exempt path", func(e map[string]string) { e["GATE_EXEMPT_PATHS"] = "status" }, "GATE_EXEMPT_PATHS"},
		{"bad upstream", func(e map[string]string) { e["UPSTREAM_URL"] = "ftp://ui" }, "UPSTREAM_URL"},
		{"bare proxy address", func(e map[string]string) { e["TRUSTED_PROXIES"] = "10.0.0.1" }, "TRUSTED_PROXIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnv()
			tt.mutate(env)
			err := loadMap(t, env).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUpstreamURL(t *testing.T) {
	env := validEnv()
	cfg := loadMap(t, env)
	u, err := cfg.UpstreamURL()
	require.NoError(t, err)
	assert.Nil(t, u)

	env["UPSTREAM_URL"] = "http://ui:3000"
	cfg = loadMap(t, env)
	u, err = cfg.UpstreamURL()
	require.NoError(t, err)
	assert.Equal(t, "ui:3000", u.Host)
}

func TestTrustedProxies(t *testing.T) {
	env := validEnv()
	env["TRUSTED_PROXIES"] = "10.0.0.0/8,192.168.1.0/24"

	nets, err := loadMap(t, env).TrustedProxies()
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, "10.0.0.0/8", nets[0].String())
	assert.Equal(t, "192.168.1.0/24", nets[1].String())
}
