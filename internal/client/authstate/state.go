// Package authstate reconciles identity-provider events on the client with the
// server's view of the user. It decides what the UI shows while a profile is
// loading, after sign-out, and when a stale response arrives late.
package authstate

import (
	"context"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// Phase is the coarse auth state shown to the UI.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot delivered to observers.
type State struct {
	Phase    Phase
	Identity *domain.Identity
	Profile  *domain.Profile
	// ProfilePending is set while the profile of the current identity is
	// being fetched after the first resolution.
	ProfilePending bool
	// Degraded is set when the profile could not be loaded; the user stays
	// signed in.
	Degraded bool
}

// IdentitySource delivers the current identity (nil when signed out) and
// every later change. It must replay the current value at least once after
// Subscribe.
type IdentitySource interface {
	Subscribe(fn func(*domain.Identity)) (unsubscribe func())
}

// ProfileFetcher loads the business profile of an identity.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, uid string) (*domain.Profile, error)
}

// Navigator is the browser location. Replace must not add a history entry.
type Navigator interface {
	Location() string
	Replace(path string)
}
