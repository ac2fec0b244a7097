package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// MinSecretLen is the shortest HMAC key accepted for signing sessions.
const MinSecretLen = 32

const DefaultIssuer = "session-gateway"

// sessionClaims is the JWT payload of a session artifact. TenantID is a
// pointer so that an unassigned tenant is encoded as JSON null.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email    string  `json:"email,omitempty"`
	Name     string  `json:"name,omitempty"`
	TenantID *string `json:"tid"`
	Role     string  `json:"role"`
	Epoch    *int64  `json:"sep"`
}

// SessionCodec signs artifacts with HS256 and parses them back, pinning the
// algorithm so that tokens signed any other way are refused.
type SessionCodec struct {
	secret []byte
	issuer string
}

func NewSessionCodec(secret, issuer string) (*SessionCodec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLen)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &SessionCodec{secret: []byte(secret), issuer: issuer}, nil
}

func (c *SessionCodec) Encode(a domain.SessionArtifact) (string, error) {
	if a.Identity.UID == "" {
		return "", fmt.Errorf("%w: artifact without subject", domain.ErrInvalidInput)
	}
	epoch := a.Epoch
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   a.Identity.UID,
			ID:        a.ID,
			IssuedAt:  jwt.NewNumericDate(a.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(a.ExpiresAt),
		},
		Email: a.Identity.Email,
		Name:  a.Identity.Name,
		Role:  string(a.Claims.Role),
		Epoch: &epoch,
	}
	if a.Claims.HasTenant() {
		tid := a.Claims.TenantID
		claims.TenantID = &tid
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Decode verifies the signature and structure of raw. Time-based checks are
// left to the caller so that expiry is evaluated against an injected clock.
func (c *SessionCodec) Decode(raw string) (*domain.SessionArtifact, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, domain.ErrMalformed
		}
		return nil, domain.ErrSignatureInvalid
	}

	if claims.Issuer != c.issuer ||
		claims.Subject == "" ||
		claims.IssuedAt == nil ||
		claims.ExpiresAt == nil ||
		claims.Epoch == nil {
		return nil, domain.ErrMalformed
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, domain.ErrMalformed
	}

	a := &domain.SessionArtifact{
		ID: claims.ID,
		Identity: domain.Identity{
			UID:   claims.Subject,
			Email: claims.Email,
			Name:  claims.Name,
		},
		Claims:    domain.Claims{Role: role},
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		Epoch:     *claims.Epoch,
	}
	if claims.TenantID != nil {
		a.Claims.TenantID = *claims.TenantID
	}
	if !a.ExpiresAt.After(a.IssuedAt) {
		return nil, domain.ErrMalformed
	}
	return a, nil
}
