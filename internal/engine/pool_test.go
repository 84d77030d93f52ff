package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chessbot/internal/board"
	"chessbot/internal/core"
	"chessbot/internal/logx"
)

func newTestPool(t *testing.T, size, queue int, cfg Config) *Pool {
	t.Helper()
	p, err := NewPool(context.Background(), PoolConfig{Size: size, QueueLimit: queue, Engine: cfg}, logx.Nop())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { p.Close(5 * time.Second) })
	return p
}

func TestPoolDispatch(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, 2, 4, fakeEngine(t, "ok", "FAKE_BESTMOVE=g1f3"))
	reply, err := p.Dispatch(context.Background(), Request{CorrelationID: "r1", FEN: board.StartingFEN, Budget: quickBudget})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if reply.BestMove != "g1f3" || reply.CorrelationID != "r1" {
		t.Errorf("Dispatch() = %+v, want g1f3 for r1", reply)
	}
	if st := p.Stats(); st.Idle != 2 || st.Live != 2 {
		t.Errorf("Stats() = %+v, want 2 idle and 2 live", st)
	}
}

func TestPoolRetriesOnSecondAdapter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	goLog := filepath.Join(dir, "go.log")
	cfg := fakeEngine(t, "hang-first", "FAKE_TOKEN="+filepath.Join(dir, "token"), "FAKE_GO_LOG="+goLog)
	p := newTestPool(t, 2, 4, cfg)

	reply, err := p.Dispatch(context.Background(), Request{CorrelationID: "r2", FEN: board.StartingFEN, Budget: quickBudget})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if reply.BestMove != "e2e4" {
		t.Errorf("BestMove = %q, want e2e4", reply.BestMove)
	}
	if n := countLines(t, goLog); n != 2 {
		t.Errorf("engine searches = %d, want 2 (one timeout, one retry)", n)
	}
	eventually(t, 5*time.Second, func() bool { return p.Stats().Restarts == 1 }, "hung adapter respawned")
	eventually(t, 5*time.Second, func() bool { return p.Stats().Idle == 2 }, "respawned adapter back in rotation")
}

func TestPoolSecondFailureSurfaces(t *testing.T) {
	t.Parallel()
	goLog := filepath.Join(t.TempDir(), "go.log")
	p := newTestPool(t, 3, 4, fakeEngine(t, "garbage", "FAKE_GO_LOG="+goLog))

	done := make(chan error, 1)
	go func() {
		_, err := p.Dispatch(context.Background(), Request{CorrelationID: "r3", FEN: board.StartingFEN, Budget: quickBudget})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, core.ErrEngineProtocol) {
			t.Fatalf("Dispatch() error = %v, want ErrEngineProtocol", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Dispatch() hung after repeated engine failures")
	}
	if n := countLines(t, goLog); n != 2 {
		t.Errorf("engine searches = %d, want 2", n)
	}
}

func TestPoolRetryGivesUpWhenNoEngineReturns(t *testing.T) {
	t.Parallel()
	// the only engine dies on its first search and every respawn stalls in the handshake
	cfg := fakeEngine(t, "exit-then-mute", "FAKE_TOKEN="+filepath.Join(t.TempDir(), "token"))
	cfg.HandshakeTimeout = 500 * time.Millisecond
	p := newTestPool(t, 1, 4, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := p.Dispatch(context.Background(), Request{CorrelationID: "r4", FEN: board.StartingFEN, Budget: quickBudget})
		done <- err
	}()
	select {
	case err := <-done:
		var engErr *core.EngineError
		if !errors.Is(err, core.ErrEngineTimeout) || !errors.As(err, &engErr) || engErr.CorrelationID != "r4" {
			t.Fatalf("Dispatch() error = %v, want EngineError with ErrEngineTimeout for r4", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dispatch() still waiting for an engine that never comes back")
	}
	if w := p.Stats().Waiting; w != 0 {
		t.Errorf("Waiting = %d after Dispatch returned, want 0", w)
	}
}

func TestPoolRetryPrefersOtherAdapter(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, 2, 4, fakeEngine(t, "ok"))
	ctx := context.Background()

	failed, err := p.acquire(ctx, nil, time.Second)
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	other, err := p.acquire(ctx, nil, time.Second)
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}

	// the failed adapter comes back first; the retry must keep waiting for the other one
	p.release(failed)
	got := make(chan *Adapter, 1)
	go func() {
		a, err := p.acquire(ctx, failed, 5*time.Second)
		if err != nil {
			t.Errorf("retry acquire() error = %v", err)
		}
		got <- a
	}()
	select {
	case a := <-got:
		t.Fatalf("retry took adapter %d before the other adapter was free", a.ID())
	case <-time.After(200 * time.Millisecond):
	}
	p.release(other)
	if a := <-got; a != other {
		t.Errorf("retry took adapter %d, want %d", a.ID(), other.ID())
	}
	eventually(t, time.Second, func() bool { return p.Stats().Idle == 1 }, "failed adapter returned to rotation")

	// with nothing else free the retry settles for the failed adapter once its wait runs out
	a, err := p.acquire(ctx, failed, 100*time.Millisecond)
	if err != nil || a != failed {
		t.Errorf("acquire() = %v, %v, want adapter %d", a, err, failed.ID())
	}
}

func TestPoolNeverExceedsSize(t *testing.T) {
	t.Parallel()
	const size = 3
	p := newTestPool(t, size, 64, fakeEngine(t, "slow", "FAKE_DELAY_MS=40"))

	var wg sync.WaitGroup
	errs := make(chan error, 24)
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Dispatch(context.Background(), Request{FEN: board.StartingFEN, Budget: Budget{Skill: -1, MoveTime: time.Second}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Dispatch() error = %v", err)
		}
	}
	if st := p.Stats(); st.Peak > size {
		t.Errorf("Peak = %d live engines, want at most %d", st.Peak, size)
	}
}

func TestPoolExhausted(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, 1, 1, fakeEngine(t, "slow", "FAKE_DELAY_MS=5000"))
	long := Request{FEN: board.StartingFEN, Budget: Budget{Skill: -1, MoveTime: 4 * time.Second}}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Dispatch(ctx, long)
	}()
	eventually(t, 2*time.Second, func() bool { return p.Stats().Idle == 0 }, "adapter taken")
	go func() {
		defer wg.Done()
		p.Dispatch(ctx, long)
	}()
	eventually(t, 2*time.Second, func() bool { return p.Stats().Waiting == 1 }, "second request queued")

	if _, err := p.Dispatch(context.Background(), long); !errors.Is(err, core.ErrPoolExhausted) {
		t.Errorf("Dispatch() error = %v, want ErrPoolExhausted", err)
	}
}

func TestPoolClosed(t *testing.T) {
	t.Parallel()
	p, err := NewPool(context.Background(), PoolConfig{Size: 1, Engine: fakeEngine(t, "ok")}, logx.Nop())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if err := p.Close(time.Second); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := p.Dispatch(context.Background(), Request{FEN: board.StartingFEN, Budget: quickBudget}); !errors.Is(err, core.ErrPoolClosed) {
		t.Errorf("Dispatch() after Close error = %v, want ErrPoolClosed", err)
	}
	if live := p.Stats().Live; live != 0 {
		t.Errorf("Live = %d after Close, want 0", live)
	}
}

func TestNewPoolValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  PoolConfig
	}{
		{"zero size", PoolConfig{Size: 0}},
		{"negative queue", PoolConfig{Size: 1, QueueLimit: -1}},
		{"no engine starts", PoolConfig{Size: 2, Engine: Config{Path: "/nonexistent/stockfish"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if p, err := NewPool(context.Background(), tt.cfg, logx.Nop()); err == nil {
				p.Close(time.Second)
				t.Error("NewPool() error = nil, want failure")
			}
		})
	}
}
