package authstate

import (
	"sync"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// Broadcaster is an in-process identity source shared by several machines,
// the way one sign-in state is shared by every open tab.
type Broadcaster struct {
	mu      sync.Mutex
	current *domain.Identity
	subs    map[int]func(*domain.Identity)
	nextID  int
}

var _ IdentitySource = (*Broadcaster)(nil)

func NewBroadcaster(initial *domain.Identity) *Broadcaster {
	return &Broadcaster{current: clone(initial), subs: make(map[int]func(*domain.Identity))}
}

// Subscribe registers fn and immediately replays the current identity.
func (b *Broadcaster) Subscribe(fn func(*domain.Identity)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	current := clone(b.current)
	b.mu.Unlock()

	fn(current)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish sets the current identity (nil for signed out) and fans it out.
func (b *Broadcaster) Publish(id *domain.Identity) {
	b.mu.Lock()
	b.current = clone(id)
	subs := make([]func(*domain.Identity), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(clone(id))
	}
}

func clone(id *domain.Identity) *domain.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
