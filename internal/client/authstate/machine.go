package authstate

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// Options configures a Machine.
type Options struct {
	LoginPath string
	// IsPublic reports whether a location may be shown signed out. Defaults
	// to the landing, login and signup pages.
	IsPublic func(path string) bool
	Logger   zerolog.Logger
}

// Machine is the client auth state machine. Each identity event starts a new
// generation; fetch results from older generations are discarded.
type Machine struct {
	source  IdentitySource
	fetcher ProfileFetcher
	nav     Navigator
	opts    Options

	mu          sync.Mutex
	state       State
	generation  uint64
	cancelFetch context.CancelFunc
	resolved    bool
	redirected  bool
	closed      bool
	unsubscribe func()
	watchers    map[int]func(State)
	nextWatcher int
	inflight    sync.WaitGroup
}

func NewMachine(source IdentitySource, fetcher ProfileFetcher, nav Navigator, opts Options) *Machine {
	if opts.LoginPath == "" {
		opts.LoginPath = "/auth/login"
	}
	if opts.IsPublic == nil {
		login := opts.LoginPath
		opts.IsPublic = func(path string) bool {
			switch path {
			case "/", "/auth/login", "/auth/signup", login:
				return true
			}
			return false
		}
	}
	return &Machine{
		source:   source,
		fetcher:  fetcher,
		nav:      nav,
		opts:     opts,
		state:    State{Phase: PhaseInitializing},
		watchers: make(map[int]func(State)),
	}
}

// Start subscribes to the identity source. The source replays the current
// identity, so the machine leaves the initializing phase on its own.
func (m *Machine) Start() {
	unsub := m.source.Subscribe(m.onIdentity)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsub()
		return
	}
	m.unsubscribe = unsub
	m.mu.Unlock()
}

// Close unsubscribes and cancels any pending fetch. Results arriving later are
// dropped.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.generation++
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.watchers = map[int]func(State){}
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch registers fn for every later state change and returns a function that
// removes it.
func (m *Machine) Watch(fn func(State)) (stop func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
}

// Wait blocks until every started fetch goroutine has returned.
func (m *Machine) Wait() {
	m.inflight.Wait()
}

func (m *Machine) onIdentity(id *domain.Identity) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.generation++
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}

	if id == nil {
		m.signOut()
		return
	}

	m.redirected = false
	identity := *id
	next := State{Identity: &identity}
	if m.resolved {
		next.Phase = PhaseAuthenticated
		next.ProfilePending = true
		if prev := m.state.Profile; prev != nil && prev.UID == identity.UID {
			next.Profile = prev
		}
	} else {
		next.Phase = PhaseInitializing
	}
	m.state = next

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFetch = cancel
	gen := m.generation
	m.inflight.Add(1)
	snap, watchers := m.state, m.watcherList()
	m.mu.Unlock()

	notify(watchers, snap)
	go m.fetch(ctx, gen, identity)
}

func (m *Machine) fetch(ctx context.Context, gen uint64, id domain.Identity) {
	defer m.inflight.Done()
	profile, err := m.fetcher.FetchProfile(ctx, id.UID)

	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.cancelFetch = nil

	// The server no longer accepts the session even though the identity
	// source still reports a user.
	if errors.Is(err, domain.ErrUnauthenticated) {
		m.opts.Logger.Info().Str("uid", id.UID).Msg("session rejected by server, signing out")
		m.signOut()
		return
	}

	m.resolved = true
	next := State{Phase: PhaseAuthenticated, Identity: m.state.Identity}
	if err != nil {
		next.Degraded = true
		next.Profile = m.state.Profile
		ev := m.opts.Logger.Warn().Err(err).Str("uid", id.UID)
		if errors.Is(err, domain.ErrProfileNotFound) {
			ev = m.opts.Logger.Info().Str("uid", id.UID)
		}
		ev.Msg("profile unavailable, continuing without it")
	} else {
		next.Profile = profile
	}
	m.state = next
	snap, watchers := m.state, m.watcherList()
	m.mu.Unlock()

	notify(watchers, snap)
}

// signOut must be called with mu held and releases it. The login redirect
// happens at most once per signed-out episode.
func (m *Machine) signOut() {
	m.resolved = true
	m.state = State{Phase: PhaseUnauthenticated}
	redirect := false
	if !m.redirected && !m.opts.IsPublic(m.nav.Location()) {
		m.redirected = true
		redirect = true
	}
	snap, watchers := m.state, m.watcherList()
	m.mu.Unlock()

	if redirect {
		m.nav.Replace(m.opts.LoginPath)
	}
	notify(watchers, snap)
}

// watcherList must be called with mu held.
func (m *Machine) watcherList() []func(State) {
	out := make([]func(State), 0, len(m.watchers))
	for _, fn := range m.watchers {
		out = append(out, fn)
	}
	return out
}

func notify(watchers []func(State), s State) {
	for _, fn := range watchers {
		fn(s)
	}
}
