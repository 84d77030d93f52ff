package session

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"chessbot/internal/board"
	"chessbot/internal/core"
	"chessbot/internal/logx"
)

type fakePersister struct {
	mu      sync.Mutex
	saved   map[string]int
	deleted []string
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: make(map[string]int)}
}

func (f *fakePersister) SaveSession(g *GameSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[g.Identity]++
	return nil
}

func (f *fakePersister) DeleteSession(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, identity)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGame(identity string) func() *GameSession {
	return func() *GameSession {
		return NewGameSession(identity, "game-"+identity, board.StartPosition(), core.ColorWhite, 3, time.Unix(0, 0))
	}
}

func TestGetOrCreateIsUnique(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make(chan *GameSession, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := s.GetOrCreate(ctx, "u1", func() *GameSession {
				return NewGameSession("u1", time.Now().String(), board.StartPosition(), core.ColorWhite, 1, time.Now())
			})
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			created <- g
		}()
	}
	wg.Wait()
	close(created)

	var first string
	for g := range created {
		if first == "" {
			first = g.GameID
		}
		if g.GameID != first {
			t.Errorf("GameID = %q, want %q: two sessions for one identity", g.GameID, first)
		}
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	if _, err := s.Get(context.Background(), "nobody"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	if err := s.Remove(context.Background(), "nobody"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("Remove() error = %v, want ErrSessionNotFound", err)
	}
}

func TestHandleSerializesSameIdentity(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx := context.Background()
	if _, err := s.GetOrCreate(ctx, "u1", newGame("u1")); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.Acquire(ctx, "u1", nil)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer h.Release()
			level := h.Session().Level
			runtime.Gosched()
			h.Session().Level = level + 1
		}()
	}
	wg.Wait()

	g, _ := s.Get(ctx, "u1")
	if g.Level != 103 {
		t.Errorf("Level = %d, want 103: updates interleaved", g.Level)
	}
}

func TestUnrelatedIdentitiesDoNotBlock(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx := context.Background()

	h, err := s.Acquire(ctx, "a", newGame("a"))
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	defer h.Release()

	done := make(chan error, 1)
	go func() {
		_, err := s.GetOrCreate(ctx, "b", newGame("b"))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("GetOrCreate(b) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetOrCreate(b) blocked behind a's lock")
	}
}

func TestUpdateAndCopies(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx := context.Background()
	g, _ := s.GetOrCreate(ctx, "u1", newGame("u1"))

	g.Level = 9
	if cur, _ := s.Get(ctx, "u1"); cur.Level != 3 {
		t.Errorf("mutating a copy changed the store: Level = %d", cur.Level)
	}
	if err := s.Update(ctx, "u1", g); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cur, _ := s.Get(ctx, "u1"); cur.Level != 9 {
		t.Errorf("Level after Update = %d, want 9", cur.Level)
	}
	if err := s.Update(ctx, "u2", g); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("Update(u2) error = %v, want ErrSessionNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	p := newFakePersister()
	var reasons []string
	s := New(logx.Nop(), WithPersister(p), WithEvictHook(func(g *GameSession, reason string) {
		reasons = append(reasons, g.Identity+":"+reason)
	}))
	ctx := context.Background()
	if _, err := s.GetOrCreate(ctx, "u1", newGame("u1")); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if err := s.Remove(ctx, "u1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrSessionNotFound", err)
	}
	if len(reasons) != 1 || reasons[0] != "u1:reset" {
		t.Errorf("evict hook calls = %v, want [u1:reset]", reasons)
	}
	if p.saved["u1"] != 1 || len(p.deleted) != 1 {
		t.Errorf("persister saved=%v deleted=%v", p.saved, p.deleted)
	}
}

func TestRemoveWaitsForHolder(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx := context.Background()

	h, _ := s.Acquire(ctx, "u1", newGame("u1"))
	removed := make(chan struct{})
	go func() {
		s.Remove(ctx, "u1")
		close(removed)
	}()

	select {
	case <-removed:
		t.Fatal("Remove() did not wait for the session holder")
	case <-time.After(50 * time.Millisecond):
	}
	h.Session().Level = 7
	h.Release()
	<-removed

	g, err := s.GetOrCreate(ctx, "u1", newGame("u1"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if g.Level != 3 {
		t.Errorf("Level = %d, want a fresh session", g.Level)
	}
}

func TestSweepIdleSessions(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var evicted []*GameSession
	s := New(logx.Nop(), WithClock(clock.Now), WithIdleTTL(time.Hour), WithEvictHook(func(g *GameSession, reason string) {
		if reason == "idle" {
			evicted = append(evicted, g)
		}
	}))
	ctx := context.Background()
	s.GetOrCreate(ctx, "idle", newGame("idle"))
	s.GetOrCreate(ctx, "busy", newGame("busy"))

	clock.Advance(30 * time.Minute)
	if n := s.Sweep(); n != 0 {
		t.Fatalf("Sweep() = %d before TTL, want 0", n)
	}

	h, _ := s.Acquire(ctx, "busy", nil)
	clock.Advance(2 * time.Hour)
	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1 (busy session skipped)", n)
	}
	h.Release()

	if len(evicted) != 1 || evicted[0].Identity != "idle" {
		t.Fatalf("evicted = %v, want idle", evicted)
	}
	if evicted[0].Status != core.StatusAbandoned {
		t.Errorf("Status = %v, want abandoned", evicted[0].Status)
	}
	if _, err := s.Get(ctx, "busy"); err != nil {
		t.Errorf("Get(busy) error = %v", err)
	}
}

func TestRunSweeperStops(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper() did not return after cancel")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx := context.Background()
	s.GetOrCreate(ctx, "live", newGame("live"))

	restored := []*GameSession{newGame("live")(), newGame("old")()}
	restored[0].Level = 8
	if n := s.Load(restored); n != 1 {
		t.Errorf("Load() = %d, want 1", n)
	}
	if g, _ := s.Get(ctx, "live"); g.Level != 3 {
		t.Errorf("Load() replaced a live session")
	}
	if _, err := s.Get(ctx, "old"); err != nil {
		t.Errorf("Get(old) error = %v", err)
	}
}
