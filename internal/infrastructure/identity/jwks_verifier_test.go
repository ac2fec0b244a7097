package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisync/session-gateway/internal/core/domain"
)

const (
	testIssuer   = "https://issuer.test/clinic-app"
	testAudience = "clinic-app"
)

type issuerFixture struct {
	srv     *httptest.Server
	key     jwk.Key
	fetches atomic.Int32
	now     time.Time

	mu  sync.Mutex
	set jwk.Set
}

func newSigningKey(t *testing.T, kid string) (priv, pub jwk.Key) {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv, err = jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, kid))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))

	pub, err = priv.PublicKey()
	require.NoError(t, err)
	return priv, pub
}

func newIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()
	f := &issuerFixture{now: time.Now().UTC().Truncate(time.Second)}
	f.rotate(t, "k1")
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		f.mu.Lock()
		set := f.set
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// rotate replaces the published key set with a single new key.
func (f *issuerFixture) rotate(t *testing.T, kid string) {
	t.Helper()
	priv, pub := newSigningKey(t, kid)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = priv
	f.set = set
}

func (f *issuerFixture) verifier(t *testing.T) *JWKSVerifier {
	t.Helper()
	v, err := NewJWKSVerifier(Config{
		JWKSURL:  f.srv.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
		Now:      func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return v
}

func (f *issuerFixture) sign(t *testing.T, mutate func(jwt.Token)) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(testIssuer).
		Audience([]string{testAudience}).
		Subject("uid-123").
		IssuedAt(f.now.Add(-time.Minute)).
		Expiration(f.now.Add(time.Hour)).
		Claim("auth_time", f.now.Add(-time.Minute).Unix()).
		Claim("email", "Ana@Clinic.Test").
		Claim("name", "Ana").
		Build()
	require.NoError(t, err)
	if mutate != nil {
		mutate(tok)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, f.key))
	require.NoError(t, err)
	return string(signed)
}

func TestJWKSVerifier_ValidToken(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	got, err := v.VerifyToken(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "uid-123", got.Identity.UID)
	assert.Equal(t, "ana@clinic.test", got.Identity.Email)
	assert.Equal(t, "Ana", got.Identity.Name)
}

func TestJWKSVerifier_CachesKeySet(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	for i := 0; i < 3; i++ {
		_, err := v.VerifyToken(context.Background(), f.sign(t, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.fetches.Load())
}

func TestJWKSVerifier_RefetchesOnRotatedKey(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	_, err := v.VerifyToken(context.Background(), f.sign(t, nil))
	require.NoError(t, err)

	f.rotate(t, "k2")
	f.now = f.now.Add(2 * time.Minute)

	got, err := v.VerifyToken(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "uid-123", got.Identity.UID)
	assert.Equal(t, int32(2), f.fetches.Load())
}

func TestJWKSVerifier_UnknownKeyRefetchIsThrottled(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	_, err := v.VerifyToken(context.Background(), f.sign(t, nil))
	require.NoError(t, err)

	forged, _ := newSigningKey(t, "unknown")
	f.key = forged
	f.now = f.now.Add(2 * time.Minute)

	for i := 0; i < 3; i++ {
		_, err = v.VerifyToken(context.Background(), f.sign(t, nil))
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	}
	assert.Equal(t, int32(2), f.fetches.Load())
}

func TestJWKSVerifier_RejectsWrongAudience(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	raw := f.sign(t, func(tok jwt.Token) { _ = tok.Set(jwt.AudienceKey, []string{"someone-else"}) })
	_, err := v.VerifyToken(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestJWKSVerifier_RejectsExpired(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	raw := f.sign(t, func(tok jwt.Token) { _ = tok.Set(jwt.ExpirationKey, f.now.Add(-time.Hour)) })
	_, err := v.VerifyToken(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestJWKSVerifier_RejectsStaleSignIn(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)

	raw := f.sign(t, func(tok jwt.Token) { _ = tok.Set("auth_time", f.now.Add(-time.Hour).Unix()) })
	_, err := v.VerifyToken(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestJWKSVerifier_RejectsForeignKey(t *testing.T) {
	f := newIssuerFixture(t)
	other := newIssuerFixture(t)
	other.now = f.now
	v := f.verifier(t)

	_, err := v.VerifyToken(context.Background(), other.sign(t, nil))
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestJWKSVerifier_IssuerUnavailable(t *testing.T) {
	f := newIssuerFixture(t)
	v := f.verifier(t)
	raw := f.sign(t, nil)
	f.srv.Close()

	_, err := v.VerifyToken(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrIssuerUnavailable)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestNewJWKSVerifier_RequiresIssuerSettings(t *testing.T) {
	_, err := NewJWKSVerifier(Config{JWKSURL: "http://x"})
	assert.Error(t, err)
}
