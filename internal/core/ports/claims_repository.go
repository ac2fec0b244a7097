package ports

import (
	"context"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// ClaimsStore is the authoritative per-identity claims and revocation-epoch
// record. Every method is atomic per identity.
type ClaimsStore interface {
	// Get returns domain.ErrClaimsNotFound when uid has never been provisioned.
	Get(ctx context.Context, uid string) (*domain.ClaimsRecord, error)
	// Provision creates the record with the given claims at epoch 0 if it does
	// not exist yet and returns whatever record is stored afterwards.
	Provision(ctx context.Context, uid string, claims domain.Claims) (*domain.ClaimsRecord, error)
	// SetClaims replaces the claims, creating the record when needed.
	SetClaims(ctx context.Context, uid string, claims domain.Claims) (*domain.ClaimsRecord, error)
	// ReserveEpoch marks an artifact as outstanding and returns the record as
	// it stands after the update. The claims and epoch it returns are read in
	// the same atomic step, so a new artifact built from them is consistent.
	ReserveEpoch(ctx context.Context, uid string) (*domain.ClaimsRecord, error)
	// CurrentEpoch returns domain.ErrClaimsNotFound for unknown identities.
	CurrentEpoch(ctx context.Context, uid string) (int64, error)
	// Revoke advances the epoch only when an artifact is outstanding. It
	// reports whether the epoch moved. Unknown identities are a no-op.
	Revoke(ctx context.Context, uid string) (bool, error)
}

// ProfileStore reads the business-facing user document.
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*domain.Profile, error)
}
