package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chessbot/internal/core"
)

const (
	restartBackoffMin     = 250 * time.Millisecond
	restartBackoffMax     = 10 * time.Second
	defaultAcquireTimeout = 30 * time.Second
)

// PoolConfig sizes the pool. QueueLimit bounds requests waiting for an idle
// adapter; one more is rejected with core.ErrPoolExhausted. AcquireTimeout
// bounds the wait of a queued request; a retry waits at most the request's
// own reply deadline.
type PoolConfig struct {
	Size           int
	QueueLimit     int
	AcquireTimeout time.Duration
	Engine         Config
}

// Stats is a point-in-time view for health reporting
type Stats struct {
	Size     int   `json:"size"`
	Idle     int   `json:"idle"`
	Waiting  int64 `json:"waiting"`
	Live     int64 `json:"live"`
	Peak     int64 `json:"peak"`
	Restarts int64 `json:"restarts"`
}

// Pool owns a fixed set of adapters. Idle adapters wait in a FIFO channel so
// the least recently used one serves the next request.
type Pool struct {
	cfg      PoolConfig
	log      zerolog.Logger
	adapters []*Adapter
	idle     chan *Adapter

	waiting  atomic.Int64
	live     atomic.Int64
	peak     atomic.Int64
	restarts atomic.Int64

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool starts every adapter concurrently. It fails if none could start;
// adapters that fail individually are respawned in the background.
func NewPool(ctx context.Context, cfg PoolConfig, log zerolog.Logger) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", cfg.Size)
	}
	if cfg.QueueLimit < 0 {
		return nil, fmt.Errorf("queue limit must not be negative, got %d", cfg.QueueLimit)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	cfg.Engine = cfg.Engine.withDefaults()

	p := &Pool{
		cfg:  cfg,
		log:  log.With().Str("component", "engine-pool").Logger(),
		idle: make(chan *Adapter, cfg.Size),
		done: make(chan struct{}),
	}
	for i := 0; i < cfg.Size; i++ {
		a := NewAdapter(i+1, cfg.Engine, p.log)
		a.onSpawn = p.spawned
		a.onExit = p.exited
		p.adapters = append(p.adapters, a)
	}

	startErrs := make([]error, cfg.Size)
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range p.adapters {
		g.Go(func() error {
			startErrs[i] = a.Start(gctx)
			return nil
		})
	}
	_ = g.Wait()

	ready := 0
	for i, a := range p.adapters {
		if startErrs[i] != nil {
			p.log.Warn().Err(startErrs[i]).Int("adapter", a.ID()).Msg("engine failed to start")
			p.recycle(a)
			continue
		}
		p.idle <- a
		ready++
	}
	if ready == 0 {
		p.Close(time.Second)
		return nil, fmt.Errorf("no engine could be started: %w", errors.Join(startErrs...))
	}
	p.log.Info().Int("size", cfg.Size).Int("ready", ready).Int("queue_limit", cfg.QueueLimit).Msg("engine pool started")
	return p, nil
}

func (p *Pool) spawned() {
	n := p.live.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (p *Pool) exited() { p.live.Add(-1) }

// Dispatch runs req on an idle adapter. An engine failure takes that adapter
// out of rotation for an asynchronous respawn and the request is retried once
// on a different adapter; a second failure is returned to the caller. Every
// wait for an adapter is bounded, so Dispatch returns even when no engine
// comes back.
func (p *Pool) Dispatch(ctx context.Context, req Request) (Reply, error) {
	var (
		lastErr error
		failed  *Adapter
	)
	for attempt := 0; attempt < 2; attempt++ {
		wait := p.cfg.AcquireTimeout
		if failed != nil {
			wait = req.Budget.Deadline(p.cfg.Engine.Grace)
		}
		a, err := p.acquire(ctx, failed, wait)
		if errors.Is(err, errAcquireTimeout) {
			if failed == nil {
				p.log.Warn().Str("correlation", req.CorrelationID).Dur("wait", wait).Msg("no engine became idle")
				return Reply{}, core.ErrPoolExhausted
			}
			p.log.Warn().Str("correlation", req.CorrelationID).Dur("wait", wait).Msg("no engine available for retry")
			return Reply{}, &core.EngineError{
				Err:           core.ErrEngineTimeout,
				AdapterID:     failed.ID(),
				CorrelationID: req.CorrelationID,
				Detail:        fmt.Sprintf("no engine available for retry within %v after: %v", wait, lastErr),
			}
		}
		if err != nil {
			return Reply{}, err
		}

		reply, err := a.Submit(ctx, req)
		if err == nil {
			p.release(a)
			return reply, nil
		}

		var engErr *core.EngineError
		if !errors.As(err, &engErr) {
			// Cancellation: the adapter drained the search and may still be usable
			if a.State() == StateReady {
				p.release(a)
			} else {
				p.recycle(a)
			}
			return Reply{}, err
		}

		p.log.Warn().Err(err).Str("correlation", req.CorrelationID).Int("attempt", attempt+1).Msg("engine request failed")
		p.recycle(a)
		failed, lastErr = a, err
	}
	return Reply{}, lastErr
}

var errAcquireTimeout = errors.New("timed out waiting for an idle engine")

// acquire takes an idle adapter, waiting at most wait in the bounded queue if
// none is free. A retry (avoid set) was already admitted and skips the queue
// bound; it prefers any adapter other than avoid and settles for avoid only
// when nothing else turns up in time.
func (p *Pool) acquire(ctx context.Context, avoid *Adapter, wait time.Duration) (*Adapter, error) {
	if p.closed.Load() {
		return nil, core.ErrPoolClosed
	}
	retry := avoid != nil
	if p.cfg.Size == 1 {
		avoid = nil
	}

	var held *Adapter
	take := func(a *Adapter) (*Adapter, bool) {
		if avoid == nil || a != avoid {
			if held != nil {
				p.release(held)
			}
			return a, true
		}
		held = a
		return nil, false
	}

	select {
	case a := <-p.idle:
		if got, ok := take(a); ok {
			return got, nil
		}
	default:
	}

	if p.waiting.Add(1) > int64(p.cfg.QueueLimit) && !retry {
		p.waiting.Add(-1)
		p.log.Warn().Int("queue_limit", p.cfg.QueueLimit).Msg("engine queue is full")
		return nil, core.ErrPoolExhausted
	}
	defer p.waiting.Add(-1)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case a := <-p.idle:
			if got, ok := take(a); ok {
				return got, nil
			}
		case <-timer.C:
			if held != nil {
				return held, nil
			}
			return nil, errAcquireTimeout
		case <-ctx.Done():
			if held != nil {
				p.release(held)
			}
			return nil, ctx.Err()
		case <-p.done:
			return nil, core.ErrPoolClosed
		}
	}
}

func (p *Pool) release(a *Adapter) {
	p.idle <- a
}

// recycle respawns a crashed adapter in the background with backoff and
// returns it to rotation once ready
func (p *Pool) recycle(a *Adapter) {
	if p.closed.Load() {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := restartBackoffMin
		for {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HandshakeTimeout)
			err := a.Restart(ctx)
			cancel()
			if err == nil {
				p.restarts.Add(1)
				if p.closed.Load() {
					return
				}
				p.idle <- a
				return
			}
			p.log.Warn().Err(err).Int("adapter", a.ID()).Dur("backoff", backoff).Msg("engine restart failed")
			select {
			case <-time.After(backoff):
			case <-p.done:
				return
			}
			backoff = min(backoff*2, restartBackoffMax)
		}
	}()
}

// Stats reports pool occupancy and the live process high-water mark
func (p *Pool) Stats() Stats {
	return Stats{
		Size:     p.cfg.Size,
		Idle:     len(p.idle),
		Waiting:  p.waiting.Load(),
		Live:     p.live.Load(),
		Peak:     p.peak.Load(),
		Restarts: p.restarts.Load(),
	}
}

// Close stops respawns and terminates every adapter. In-flight requests
// finish before their adapter is closed.
func (p *Pool) Close(timeout time.Duration) error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-time.After(timeout):
		errs = append(errs, fmt.Errorf("engine restarts still running after %v", timeout))
	}

	for _, a := range p.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("adapter %d: %w", a.ID(), err))
		}
	}
	return errors.Join(errs...)
}
