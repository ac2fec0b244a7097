package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

const (
	DefaultJWKSTTL    = 6 * time.Hour
	DefaultTimeout    = 5 * time.Second
	DefaultMaxAuthAge = 5 * time.Minute

	// minKeyRefresh limits refetches triggered by unknown key ids.
	minKeyRefresh = time.Minute
)

// Config describes the external identity issuer.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
	JWKSTTL  time.Duration
	Timeout  time.Duration
	// MaxAuthAge bounds how long ago the user signed in with the issuer. A
	// stale sign-in cannot be exchanged for a fresh five-day session.
	MaxAuthAge time.Duration
	Now        func() time.Time
}

// jwksCache holds the issuer key set until its TTL passes. A token naming a
// key the set lacks forces an early refetch so rotated keys are picked up.
type jwksCache struct {
	mu      sync.RWMutex
	set     jwk.Set
	fetched time.Time
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration, client *http.Client, now time.Time, kid string) (jwk.Set, error) {
	c.mu.RLock()
	if c.usable(now, kid) {
		set := c.set
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usable(now, kid) {
		return c.set, nil
	}
	set, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(client))
	if err != nil {
		if c.set != nil && now.Before(c.expires) {
			return c.set, nil
		}
		return nil, err
	}
	c.set = set
	c.fetched = now
	c.expires = now.Add(ttl)
	return set, nil
}

// usable must be called with mu held.
func (c *jwksCache) usable(now time.Time, kid string) bool {
	if c.set == nil || !now.Before(c.expires) {
		return false
	}
	if kid == "" || now.Sub(c.fetched) < minKeyRefresh {
		return true
	}
	_, ok := c.set.LookupKeyID(kid)
	return ok
}

// keyID reads the kid header without verifying anything.
func keyID(idToken string) string {
	msg, err := jws.Parse([]byte(idToken))
	if err != nil || len(msg.Signatures()) == 0 {
		return ""
	}
	return msg.Signatures()[0].ProtectedHeaders().KeyID()
}

// JWKSVerifier verifies identity tokens signed by the issuer's published keys.
type JWKSVerifier struct {
	cfg    Config
	client *http.Client
	cache  jwksCache
}

var _ ports.TokenVerifier = (*JWKSVerifier)(nil)

func NewJWKSVerifier(cfg Config) (*JWKSVerifier, error) {
	if cfg.JWKSURL == "" || cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("identity issuer requires jwks url, issuer and audience")
	}
	if cfg.JWKSTTL <= 0 {
		cfg.JWKSTTL = DefaultJWKSTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAuthAge <= 0 {
		cfg.MaxAuthAge = DefaultMaxAuthAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWKSVerifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (v *JWKSVerifier) VerifyToken(ctx context.Context, idToken string) (*ports.VerifiedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	set, err := v.cache.get(ctx, v.cfg.JWKSURL, v.cfg.JWKSTTL, v.client, v.cfg.Now(), keyID(idToken))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch jwks: %v", domain.ErrIssuerUnavailable, err)
	}

	tok, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(set),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(v.cfg.Now)),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return nil, domain.ErrInvalidToken
	}

	authTime := tok.IssuedAt()
	if raw, ok := tok.Get("auth_time"); ok {
		if t, ok := numericTime(raw); ok {
			authTime = t
		}
	}
	if authTime.IsZero() || v.cfg.Now().Sub(authTime) > v.cfg.MaxAuthAge {
		return nil, fmt.Errorf("%w: sign-in too old", domain.ErrInvalidToken)
	}

	id := domain.Identity{UID: tok.Subject()}
	if email, ok := tok.Get("email"); ok {
		id.Email, _ = email.(string)
	}
	if name, ok := tok.Get("name"); ok {
		id.Name, _ = name.(string)
	}
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))

	return &ports.VerifiedToken{Identity: id, AuthTime: authTime, IssuedAt: tok.IssuedAt()}, nil
}

func numericTime(v interface{}) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0).UTC(), true
	case int64:
		return time.Unix(n, 0).UTC(), true
	case time.Time:
		return n, true
	default:
		return time.Time{}, false
	}
}
