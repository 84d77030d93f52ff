// Package session keeps one GameSession per identity with per-identity
// mutual exclusion. The map lock is held only to find or insert an entry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chessbot/internal/core"
)

const (
	DefaultIdleTTL       = 24 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Persister stores sessions across restarts. Implementations must not block
// for long, they are called with the session's lock held.
type Persister interface {
	SaveSession(g *GameSession) error
	DeleteSession(identity string) error
}

// EvictFunc observes sessions leaving the store, reason is "reset" or "idle"
type EvictFunc func(g *GameSession, reason string)

type entry struct {
	mu       sync.Mutex
	session  *GameSession
	removed  bool
	lastUsed time.Time
}

// Store maps identities to their single live GameSession
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	log       zerolog.Logger
	persister Persister
	onEvict   EvictFunc
	idleTTL   time.Duration
	now       func() time.Time
}

// Option configures a Store
type Option func(*Store)

func WithPersister(p Persister) Option { return func(s *Store) { s.persister = p } }

func WithIdleTTL(ttl time.Duration) Option { return func(s *Store) { s.idleTTL = ttl } }

func WithEvictHook(f EvictFunc) Option { return func(s *Store) { s.onEvict = f } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New creates an empty store
func New(log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		log:     log.With().Str("component", "session-store").Logger(),
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle is exclusive access to one identity's session until Release
type Handle struct {
	store    *Store
	identity string
	e        *entry
	created  bool
	done     bool
}

// Acquire locks the identity's session. When none exists, create builds one
// if non-nil, otherwise core.ErrSessionNotFound is returned.
func (s *Store) Acquire(ctx context.Context, identity string, create func() *GameSession) (*Handle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		e, ok := s.entries[identity]
		created := false
		if !ok {
			if create == nil {
				s.mu.Unlock()
				return nil, core.ErrSessionNotFound
			}
			e = &entry{session: create(), lastUsed: s.now()}
			s.entries[identity] = e
			created = true
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.removed {
			// Lost a race with Remove or the sweeper, look again
			e.mu.Unlock()
			continue
		}
		if created {
			s.log.Info().Str("identity", identity).Msg("session created")
		}
		return &Handle{store: s, identity: identity, e: e, created: created}, nil
	}
}

// Session is the live session, valid until Release
func (h *Handle) Session() *GameSession { return h.e.session }

// Created reports whether Acquire made a new session
func (h *Handle) Created() bool { return h.created }

// Replace swaps in a new session for the same identity
func (h *Handle) Replace(g *GameSession) {
	g.Identity = h.identity
	h.e.session = g
}

// Commit persists the session. Persistence failures are logged, the
// in-memory session stays authoritative.
func (h *Handle) Commit() {
	g := h.e.session
	g.UpdatedAt = h.store.now()
	g.Version++
	if h.store.persister != nil {
		if err := h.store.persister.SaveSession(g); err != nil {
			h.store.log.Warn().Err(err).Str("identity", h.identity).Msg("session not persisted")
		}
	}
}

// Remove deletes the session; the handle is released
func (h *Handle) Remove(reason string) {
	if h.done {
		return
	}
	h.store.evict(h.identity, h.e, reason)
	h.done = true
	h.e.mu.Unlock()
}

// Release unlocks the session
func (h *Handle) Release() {
	if h.done {
		return
	}
	h.done = true
	h.e.lastUsed = h.store.now()
	h.e.mu.Unlock()
}

// evict removes an entry whose lock the caller holds
func (s *Store) evict(identity string, e *entry, reason string) {
	e.removed = true
	s.mu.Lock()
	if s.entries[identity] == e {
		delete(s.entries, identity)
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		s.onEvict(e.session, reason)
	}
	if s.persister != nil {
		if err := s.persister.DeleteSession(identity); err != nil {
			s.log.Warn().Err(err).Str("identity", identity).Msg("session delete not persisted")
		}
	}
	s.log.Info().Str("identity", identity).Str("reason", reason).Msg("session removed")
}

// GetOrCreate returns a copy of the identity's session, creating it if needed
func (s *Store) GetOrCreate(ctx context.Context, identity string, create func() *GameSession) (*GameSession, error) {
	h, err := s.Acquire(ctx, identity, create)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	if h.Created() {
		h.Commit()
	}
	return h.Session().Clone(), nil
}

// Get returns a copy of the identity's session
func (s *Store) Get(ctx context.Context, identity string) (*GameSession, error) {
	h, err := s.Acquire(ctx, identity, nil)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Session().Clone(), nil
}

// Update replaces the identity's session with g
func (s *Store) Update(ctx context.Context, identity string, g *GameSession) error {
	h, err := s.Acquire(ctx, identity, nil)
	if err != nil {
		return err
	}
	defer h.Release()
	h.Replace(g.Clone())
	h.Commit()
	return nil
}

// Remove deletes the identity's session
func (s *Store) Remove(ctx context.Context, identity string) error {
	h, err := s.Acquire(ctx, identity, nil)
	if err != nil {
		return err
	}
	h.Remove("reset")
	return nil
}

// Load inserts sessions restored from storage, replacing nothing that is live
func (s *Store) Load(sessions []*GameSession) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range sessions {
		if _, ok := s.entries[g.Identity]; ok {
			continue
		}
		s.entries[g.Identity] = &entry{session: g, lastUsed: s.now()}
		n++
	}
	return n
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts sessions idle longer than the TTL. Sessions currently locked
// are in use and skipped. In-progress games are marked abandoned first.
func (s *Store) Sweep() int {
	s.mu.Lock()
	candidates := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		candidates[id] = e
	}
	s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	evicted := 0
	for id, e := range candidates {
		if !e.mu.TryLock() {
			continue
		}
		if e.removed || e.lastUsed.After(cutoff) {
			e.mu.Unlock()
			continue
		}
		if !e.session.Status.Over() {
			e.session.Status = core.StatusAbandoned
			e.session.Phase = core.PhaseGameOver
			e.session.Pending = ""
		}
		s.evict(id, e, "idle")
		e.mu.Unlock()
		evicted++
	}
	return evicted
}

// RunSweeper runs periodic cleanup of idle sessions until ctx is done
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Info().Int("evicted", n).Msg("idle sessions swept")
			}
		}
	}
}
