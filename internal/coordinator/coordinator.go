// Package coordinator is the per-session state machine between chat
// commands, the rules, the session store and the engine pool.
//
// A session's lock is held only while validating and committing. Engine
// round-trips run unlocked; the reply is committed only if the session still
// carries the correlation id the request was sent with.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chessbot/internal/board"
	"chessbot/internal/core"
	"chessbot/internal/engine"
	"chessbot/internal/render"
	"chessbot/internal/rules"
	"chessbot/internal/session"
)

// Dispatcher runs one engine search. *engine.Pool implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req engine.Request) (engine.Reply, error)
}

// Archiver keeps finished games. *storage.Store implements it.
type Archiver interface {
	ArchiveGame(g *session.GameSession) error
}

const defaultTurnTimeout = time.Minute

// Config holds the engine strength settings. TurnTimeout bounds one engine
// call including the pool's queueing and retry.
type Config struct {
	Strength     engine.StrengthTable
	DefaultLevel int
	TurnTimeout  time.Duration
}

// errTurnTimeout is the cancel cause of an engine call that ran out of time
var errTurnTimeout = errors.New("engine turn timed out")

// Option configures a Coordinator
type Option func(*Coordinator)

func WithArchiver(a Archiver) Option { return func(c *Coordinator) { c.archiver = a } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func WithIDs(next func() string) Option { return func(c *Coordinator) { c.newID = next } }

func WithWaitRegistry(w *WaitRegistry) Option { return func(c *Coordinator) { c.waiters = w } }

// Coordinator executes commands against sessions
type Coordinator struct {
	store        *session.Store
	engine       Dispatcher
	strength     engine.StrengthTable
	defaultLevel int
	turnTimeout  time.Duration
	archiver     Archiver
	waiters      *WaitRegistry
	log          zerolog.Logger
	now          func() time.Time
	newID        func() string

	mu       sync.Mutex
	inflight map[string]map[string]context.CancelCauseFunc // identity → correlation id → cancel
}

// New creates a coordinator over store and dispatcher
func New(store *session.Store, dispatcher Dispatcher, cfg Config, log zerolog.Logger, opts ...Option) (*Coordinator, error) {
	if cfg.Strength == nil {
		cfg.Strength = engine.DefaultStrength
	}
	if err := cfg.Strength.Validate(); err != nil {
		return nil, err
	}
	if cfg.DefaultLevel == 0 {
		cfg.DefaultLevel = 3
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if _, err := cfg.Strength.Budget(cfg.DefaultLevel); err != nil {
		return nil, fmt.Errorf("default level: %w", err)
	}

	c := &Coordinator{
		store:        store,
		engine:       dispatcher,
		strength:     cfg.Strength,
		defaultLevel: cfg.DefaultLevel,
		turnTimeout:  cfg.TurnTimeout,
		log:          log.With().Str("component", "coordinator").Logger(),
		now:          time.Now,
		newID:        uuid.NewString,
		inflight:     make(map[string]map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.waiters == nil {
		c.waiters = NewWaitRegistry()
	}
	return c, nil
}

// Execute runs one command to completion. Commands that hand the turn to
// the engine return after the engine's move is committed or has failed.
func (c *Coordinator) Execute(ctx context.Context, cmd Command) Response {
	if cmd.Identity == "" {
		return c.errorResponse(fmt.Errorf("%w: missing identity", core.ErrInvalidArguments))
	}
	c.log.Debug().Str("identity", cmd.Identity).Stringer("command", cmd.Type).Msg("command received")

	switch cmd.Type {
	case CmdNewGame:
		return c.handleNewGame(ctx, cmd)
	case CmdMove:
		return c.handleMove(ctx, cmd)
	case CmdHint:
		return c.handleHint(ctx, cmd)
	case CmdEval:
		return c.handleEval(ctx, cmd)
	case CmdApplyHint:
		return c.handleApplyHint(ctx, cmd)
	case CmdResign:
		return c.handleResign(ctx, cmd)
	case CmdBoard:
		return c.handleBoard(ctx, cmd)
	case CmdFEN:
		return c.handleFEN(ctx, cmd)
	case CmdSetPosition:
		return c.handleSetPosition(ctx, cmd)
	case CmdUndo:
		return c.handleUndo(ctx, cmd)
	case CmdRetry:
		return c.handleRetry(ctx, cmd)
	case CmdReset:
		return c.handleReset(ctx, cmd)
	default:
		return c.errorResponse(fmt.Errorf("%w: unknown command", core.ErrInvalidArguments))
	}
}

// defaultSession builds the game an identity gets on its first command
func (c *Coordinator) defaultSession(identity string) func() *session.GameSession {
	return func() *session.GameSession {
		return session.NewGameSession(identity, c.newID(), board.StartPosition(), core.ColorWhite, c.defaultLevel, c.now())
	}
}

// acquire locks the identity's session, committing it if it was just created
func (c *Coordinator) acquire(ctx context.Context, identity string, create bool) (*session.Handle, error) {
	var fn func() *session.GameSession
	if create {
		fn = c.defaultSession(identity)
	}
	h, err := c.store.Acquire(ctx, identity, fn)
	if err != nil {
		return nil, err
	}
	if h.Created() {
		h.Commit()
	}
	return h, nil
}

// budget resolves a level, falling back to the default for levels no longer in the table
func (c *Coordinator) budget(level int) engine.Budget {
	b, err := c.strength.Budget(level)
	if err != nil {
		b, _ = c.strength.Budget(c.defaultLevel)
	}
	return b
}

// checkTerminal ends the game if its current position is terminal
func (c *Coordinator) checkTerminal(g *session.GameSession) {
	t, err := rules.TerminalStatus(g.Position, g.History()...)
	if err != nil {
		c.log.Error().Err(err).Str("identity", g.Identity).Msg("terminal check failed")
		return
	}
	if t == rules.TerminalNone {
		return
	}
	g.Status = t.Status()
	g.Terminal = t
	if t == rules.TerminalCheckmate {
		g.Winner = core.OppositeColor(g.Position.Turn())
	}
	g.Phase = core.PhaseGameOver
	g.Pending = ""
	c.log.Info().Str("identity", g.Identity).Str("game", g.GameID).Stringer("result", t).Msg("game over")
}

// prepareEngineTurn hands the turn to the engine; the caller commits
func (c *Coordinator) prepareEngineTurn(g *session.GameSession) engine.Request {
	id := c.newID()
	g.Phase = core.PhaseAwaitingEngine
	g.Pending = id
	return engine.Request{
		CorrelationID: id,
		FEN:           g.Position.FEN(),
		Budget:        c.budget(g.Level),
	}
}

// playEngine runs a prepared engine turn without the session lock and
// commits the reply if the session is still waiting for it. A failed turn
// leaves the session awaiting-engine-move with nothing pending, so retry
// can ask again.
func (c *Coordinator) playEngine(ctx context.Context, identity string, req engine.Request) (*session.GameSession, *core.MoveInfo, error) {
	tctx, done := c.track(ctx, identity, req.CorrelationID)
	reply, err := c.engine.Dispatch(tctx, req)
	superseded := context.Cause(tctx) == core.ErrSuperseded
	err = c.timedOut(tctx, req, err)
	done()

	h, aerr := c.store.Acquire(context.WithoutCancel(ctx), identity, nil)
	if aerr != nil {
		c.log.Debug().Str("identity", identity).Str("correlation", req.CorrelationID).Msg("engine reply for removed session discarded")
		return nil, nil, core.ErrSuperseded
	}
	defer h.Release()
	g := h.Session()
	if superseded || g.Pending != req.CorrelationID {
		c.log.Debug().Str("identity", identity).Str("correlation", req.CorrelationID).Msg("stale engine reply discarded")
		return g.Clone(), nil, core.ErrSuperseded
	}

	g.Pending = ""
	if err != nil {
		c.log.Warn().Err(err).Str("identity", identity).Str("correlation", req.CorrelationID).Msg("engine turn failed")
		h.Commit()
		c.notify(g)
		return g.Clone(), nil, err
	}

	info, err := c.applyEngineMove(g, reply)
	h.Commit()
	c.notify(g)
	if g.Status.Over() {
		c.archive(g)
	}
	if err != nil {
		return g.Clone(), nil, err
	}
	return g.Clone(), info, nil
}

// applyEngineMove re-validates and commits the engine's move
func (c *Coordinator) applyEngineMove(g *session.GameSession, reply engine.Reply) (*core.MoveInfo, error) {
	if reply.NoMove {
		return nil, c.engineFault(g, reply, "engine reported no legal move in a live position")
	}
	m, err := board.ParseUCI(reply.BestMove)
	if err != nil {
		return nil, c.engineFault(g, reply, fmt.Sprintf("unparseable engine move %q", reply.BestMove))
	}
	mover := g.Position.Turn()
	next, applied, err := rules.Apply(g.Position, m)
	if err != nil {
		return nil, c.engineFault(g, reply, fmt.Sprintf("illegal engine move %q", reply.BestMove))
	}
	san, _ := rules.SAN(g.Position, applied)

	g.Push(applied, next)
	g.Phase = core.PhaseAwaitingHuman
	c.checkTerminal(g)

	return &core.MoveInfo{
		Move:        applied.String(),
		SAN:         san,
		PlayerColor: mover.String(),
		Score:       reply.Score,
		Mate:        reply.Mate,
		Depth:       reply.Depth,
	}, nil
}

// engineFault ends a game the engine can no longer be trusted in
func (c *Coordinator) engineFault(g *session.GameSession, reply engine.Reply, detail string) error {
	c.log.Error().Str("identity", g.Identity).Str("correlation", reply.CorrelationID).Int("adapter", reply.AdapterID).Msg(detail)
	g.Status = core.StatusAbandoned
	g.Phase = core.PhaseGameOver
	g.Pending = ""
	return &core.EngineError{
		Err:           core.ErrEngineProtocol,
		AdapterID:     reply.AdapterID,
		CorrelationID: reply.CorrelationID,
		Detail:        detail,
	}
}

// advise runs an advisory search that a reset can abort
func (c *Coordinator) advise(ctx context.Context, identity string, fen string) (engine.Reply, error) {
	req := engine.Request{
		CorrelationID: c.newID(),
		FEN:           fen,
		Budget:        engine.AdvisoryBudget,
		Advisory:      true,
	}
	tctx, done := c.track(ctx, identity, req.CorrelationID)
	defer done()

	reply, err := c.engine.Dispatch(tctx, req)
	if context.Cause(tctx) == core.ErrSuperseded {
		return engine.Reply{}, core.ErrSuperseded
	}
	return reply, c.timedOut(tctx, req, err)
}

// timedOut turns an engine call cut off by the turn deadline into an engine timeout
func (c *Coordinator) timedOut(tctx context.Context, req engine.Request, err error) error {
	if err == nil || context.Cause(tctx) != errTurnTimeout {
		return err
	}
	return &core.EngineError{
		Err:           core.ErrEngineTimeout,
		CorrelationID: req.CorrelationID,
		Detail:        fmt.Sprintf("no reply within %v", c.turnTimeout),
	}
}

// track registers an engine call so cancelInflight can abort it, and bounds
// it by the turn timeout
func (c *Coordinator) track(ctx context.Context, identity, correlationID string) (context.Context, func()) {
	cctx, cancel := context.WithCancelCause(ctx)
	tctx, stop := context.WithTimeoutCause(cctx, c.turnTimeout, errTurnTimeout)

	c.mu.Lock()
	calls := c.inflight[identity]
	if calls == nil {
		calls = make(map[string]context.CancelCauseFunc)
		c.inflight[identity] = calls
	}
	calls[correlationID] = cancel
	c.mu.Unlock()

	return tctx, func() {
		c.mu.Lock()
		if calls := c.inflight[identity]; calls != nil {
			delete(calls, correlationID)
			if len(calls) == 0 {
				delete(c.inflight, identity)
			}
		}
		c.mu.Unlock()
		stop()
		cancel(nil)
	}
}

// cancelInflight aborts every engine call made for identity
func (c *Coordinator) cancelInflight(identity string) {
	c.mu.Lock()
	calls := c.inflight[identity]
	delete(c.inflight, identity)
	c.mu.Unlock()

	for _, cancel := range calls {
		cancel(core.ErrSuperseded)
	}
	if len(calls) > 0 {
		c.log.Debug().Str("identity", identity).Int("requests", len(calls)).Msg("engine requests cancelled")
	}
}

// Inflight returns the number of engine calls currently running for identity
func (c *Coordinator) Inflight(identity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight[identity])
}

func (c *Coordinator) notify(g *session.GameSession) {
	c.waiters.Notify(g.Identity, g.Version)
}

func (c *Coordinator) archive(g *session.GameSession) {
	if c.archiver == nil || len(g.Moves) == 0 {
		return
	}
	if err := c.archiver.ArchiveGame(g.Clone()); err != nil {
		c.log.Warn().Err(err).Str("game", g.GameID).Msg("game not archived")
	}
}

// retire archives a replaced game that never finished
func (c *Coordinator) retire(old *session.GameSession) {
	if old.Status.Over() {
		return
	}
	g := old.Clone()
	g.Status = core.StatusAbandoned
	g.Phase = core.PhaseGameOver
	g.Pending = ""
	c.archive(g)
}

// SessionEvicted is the session store's evict hook. Idle sessions arrive
// already marked abandoned.
func (c *Coordinator) SessionEvicted(g *session.GameSession, reason string) {
	c.cancelInflight(g.Identity)
	c.waiters.Drop(g.Identity)
	if reason == "idle" && g.Status == core.StatusAbandoned {
		c.archive(g)
	}
}

// Snapshot returns the identity's session without changing it
func (c *Coordinator) Snapshot(ctx context.Context, identity string) (core.SessionResponse, error) {
	g, err := c.store.Get(ctx, identity)
	if err != nil {
		return core.SessionResponse{}, err
	}
	return c.sessionResponse(g, nil, render.StatusText(outcome(g))), nil
}

// Version returns the identity's session change counter
func (c *Coordinator) Version(ctx context.Context, identity string) (int64, error) {
	g, err := c.store.Get(ctx, identity)
	if err != nil {
		return 0, err
	}
	return g.Version, nil
}

// Wait blocks until the identity's session moves past version, WaitTimeout
// passes or ctx ends, then returns the current snapshot
func (c *Coordinator) Wait(ctx context.Context, identity string, version int64) (core.SessionResponse, error) {
	notify, cancel := c.waiters.Register(ctx, identity, version)
	defer cancel()
	if cur, err := c.Version(ctx, identity); err != nil || cur != version {
		if err != nil {
			return core.SessionResponse{}, err
		}
		return c.Snapshot(ctx, identity)
	}

	select {
	case <-notify:
	case <-ctx.Done():
		return core.SessionResponse{}, ctx.Err()
	}
	return c.Snapshot(context.WithoutCancel(ctx), identity)
}

// Waiters exposes the long-poll registry for shutdown
func (c *Coordinator) Waiters() *WaitRegistry { return c.waiters }

// Shutdown aborts running engine calls and releases long-polling clients
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	identities := make([]string, 0, len(c.inflight))
	for id := range c.inflight {
		identities = append(identities, id)
	}
	c.mu.Unlock()
	for _, id := range identities {
		c.cancelInflight(id)
	}
	return c.waiters.Shutdown(timeout)
}
