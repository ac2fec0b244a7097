package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the per-tenant authorization level carried in a session.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

var (
	ErrInvalidRole     = errors.New("invalid role")
	ErrClaimsNotFound  = errors.New("claims not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// ParseRole normalises s and reports ErrInvalidRole for anything outside
// the admin/staff set.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStaff:
		return RoleStaff, nil
	default:
		return "", ErrInvalidRole
	}
}

// Identity is the issuer-assigned user reference. It is never mutated here.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Claims are the authorization attributes embedded in a session artifact.
// An empty TenantID means the identity is not assigned to any clinic yet.
type Claims struct {
	TenantID string `json:"tenantId"`
	Role     Role   `json:"role"`
}

// DefaultClaims is the record created on first login when provisioning is
// enabled: no tenant, staff role.
func DefaultClaims() Claims {
	return Claims{Role: RoleStaff}
}

// HasTenant reports whether the claims scope the identity to a clinic.
func (c Claims) HasTenant() bool {
	return c.TenantID != ""
}

// IsAdmin reports whether the claims carry the admin role.
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ClaimsRecord is the stored form of an identity's claims together with its
// revocation epoch. Outstanding is set when an artifact may have been minted
// at the current epoch; revocation only advances the epoch when it is set.
type ClaimsRecord struct {
	UID         string
	Claims      Claims
	Epoch       int64
	Outstanding bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile is the business-facing user document kept in the document store.
type Profile struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ClinicID   string `json:"clinicId,omitempty"`
	ClinicName string `json:"clinicName,omitempty"`
	PhotoURL   string `json:"photoUrl,omitempty"`
	Role       Role   `json:"role,omitempty"`
}
