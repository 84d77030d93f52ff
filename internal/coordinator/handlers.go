package coordinator

import (
	"context"
	"fmt"
	"strings"

	"chessbot/internal/board"
	"chessbot/internal/core"
	"chessbot/internal/engine"
	"chessbot/internal/render"
	"chessbot/internal/rules"
	"chessbot/internal/session"
)

// handleNewGame replaces the identity's game with a fresh one
func (c *Coordinator) handleNewGame(ctx context.Context, cmd Command) Response {
	args, ok := cmd.Args.(core.NewGameRequest)
	if !ok {
		return c.errorResponse(core.ErrInvalidArguments)
	}

	level := args.Level
	if level == 0 {
		level = c.defaultLevel
	}
	if _, err := c.strength.Budget(level); err != nil {
		return c.errorResponse(fmt.Errorf("%w: %v", core.ErrInvalidArguments, err))
	}
	human, ok := core.ParseColor(args.Color)
	if !ok {
		return c.errorResponse(fmt.Errorf("%w: color must be white or black", core.ErrInvalidArguments))
	}
	start := board.StartPosition()
	if args.FEN != "" {
		p, err := rules.ValidatePosition(args.FEN)
		if err != nil {
			return c.errorResponse(err)
		}
		start = p
	}

	g := session.NewGameSession(cmd.Identity, c.newID(), start, human, level, c.now())
	h, err := c.store.Acquire(ctx, cmd.Identity, func() *session.GameSession { return g })
	if err != nil {
		return c.errorResponse(err)
	}
	return c.install(ctx, h, g)
}

// handleSetPosition restarts the game from a FEN, keeping colour and level
func (c *Coordinator) handleSetPosition(ctx context.Context, cmd Command) Response {
	args, ok := cmd.Args.(core.PositionRequest)
	if !ok {
		return c.errorResponse(core.ErrInvalidArguments)
	}
	start, err := rules.ValidatePosition(strings.TrimSpace(args.FEN))
	if err != nil {
		return c.errorResponse(err)
	}

	// a first command gets the default colour and level, otherwise they carry over
	var g *session.GameSession
	h, err := c.store.Acquire(ctx, cmd.Identity, func() *session.GameSession {
		g = session.NewGameSession(cmd.Identity, c.newID(), start, core.ColorWhite, c.defaultLevel, c.now())
		return g
	})
	if err != nil {
		return c.errorResponse(err)
	}
	if !h.Created() {
		old := h.Session()
		g = session.NewGameSession(cmd.Identity, c.newID(), start, old.Human, old.Level, c.now())
	}
	return c.install(ctx, h, g)
}

// install makes g the identity's game. It owns h and releases it.
func (c *Coordinator) install(ctx context.Context, h *session.Handle, g *session.GameSession) Response {
	identity := g.Identity
	if h.Session() != g {
		if !h.Created() {
			c.retire(h.Session())
			c.cancelInflight(identity)
		}
		h.Replace(g)
	}

	c.checkTerminal(g)
	var req engine.Request
	engineFirst := g.EngineToMove()
	if engineFirst {
		req = c.prepareEngineTurn(g)
	}
	h.Commit()
	snap := g.Clone()
	h.Release()
	c.notify(snap)

	c.log.Info().Str("identity", identity).Str("game", snap.GameID).Int("level", snap.Level).
		Str("human", snap.Human.String()).Str("fen", snap.Initial.FEN()).Msg("new game")

	intro := fmt.Sprintf("New game at level %d. You play %s.", snap.Level, snap.Human.Name())
	if !engineFirst {
		return c.okResponse(snap, nil, intro)
	}

	after, info, err := c.playEngine(ctx, identity, req)
	if err != nil {
		return c.turnError(err, after, nil)
	}
	return c.okResponse(after, info, intro+"\n"+render.MoveCaption("Engine", info.SAN, info.Move))
}

// handleMove plays the human's move and, if the game goes on, the engine's reply
func (c *Coordinator) handleMove(ctx context.Context, cmd Command) Response {
	args, ok := cmd.Args.(core.MoveRequest)
	if !ok {
		return c.errorResponse(core.ErrInvalidArguments)
	}
	h, err := c.acquire(ctx, cmd.Identity, true)
	if err != nil {
		return c.errorResponse(err)
	}
	return c.humanMove(ctx, h, args.Move)
}

// handleApplyHint plays the last suggestion as the human's move
func (c *Coordinator) handleApplyHint(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, false)
	if err != nil {
		return c.errorResponse(err)
	}
	g := h.Session()
	if g.Hint == nil || g.Hint.FEN != g.Position.FEN() {
		h.Release()
		return c.errorResponse(core.ErrNoHint)
	}
	return c.humanMove(ctx, h, g.Hint.Move)
}

// humanTurnError reports why the human may not move now
func humanTurnError(g *session.GameSession) error {
	switch {
	case g.Status.Over():
		return core.ErrGameOver
	case g.Pending != "":
		return core.ErrEngineThinking
	case g.EngineToMove():
		return core.ErrEngineOwesMove
	}
	return nil
}

// humanMove validates and commits text as the human's move. It owns h and
// releases it before any engine round-trip.
func (c *Coordinator) humanMove(ctx context.Context, h *session.Handle, text string) Response {
	g := h.Session()
	identity := g.Identity
	if err := humanTurnError(g); err != nil {
		h.Release()
		return c.errorResponse(err)
	}

	m, err := rules.ParseMove(g.Position, text)
	if err != nil {
		h.Release()
		return c.errorResponse(err)
	}
	mover := g.Position.Turn()
	san, _ := rules.SAN(g.Position, m)
	next, applied, err := rules.Apply(g.Position, m)
	if err != nil {
		h.Release()
		return c.errorResponse(err)
	}

	g.Push(applied, next)
	c.checkTerminal(g)
	played := &core.MoveInfo{Move: applied.String(), SAN: san, PlayerColor: mover.String()}

	var req engine.Request
	engineTurn := g.EngineToMove()
	if engineTurn {
		req = c.prepareEngineTurn(g)
	}
	h.Commit()
	snap := g.Clone()
	h.Release()
	c.notify(snap)

	c.log.Debug().Str("identity", identity).Str("move", played.Move).Msg("human move committed")

	caption := render.MoveCaption("You", san, played.Move)
	if snap.Status.Over() {
		c.archive(snap)
		return c.okResponse(snap, played, caption)
	}
	if !engineTurn {
		return c.okResponse(snap, played, caption)
	}

	after, reply, err := c.playEngine(ctx, identity, req)
	if err != nil {
		return c.turnError(err, after, played)
	}
	return c.okResponse(after, reply, caption+"\n"+render.MoveCaption("Engine", reply.SAN, reply.Move))
}

// handleRetry asks the engine again for a turn that failed
func (c *Coordinator) handleRetry(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, false)
	if err != nil {
		return c.errorResponse(err)
	}
	g := h.Session()
	switch {
	case g.Status.Over():
		h.Release()
		return c.errorResponse(core.ErrGameOver)
	case g.Pending != "":
		h.Release()
		return c.errorResponse(core.ErrEngineThinking)
	case !g.EngineToMove():
		h.Release()
		return c.errorResponse(core.ErrNotEngineTurn)
	}
	req := c.prepareEngineTurn(g)
	h.Commit()
	identity := g.Identity
	h.Release()

	after, info, err := c.playEngine(ctx, identity, req)
	if err != nil {
		return c.turnError(err, after, nil)
	}
	return c.okResponse(after, info, render.MoveCaption("Engine", info.SAN, info.Move))
}

// handleHint suggests a move for the human without changing the game
func (c *Coordinator) handleHint(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, true)
	if err != nil {
		return c.errorResponse(err)
	}
	g := h.Session()
	if err := humanTurnError(g); err != nil {
		h.Release()
		return c.errorResponse(err)
	}
	pos, gameID := g.Position, g.GameID
	h.Release()

	reply, err := c.advise(ctx, cmd.Identity, pos.FEN())
	if err != nil {
		return c.errorResponse(err)
	}
	m, err := board.ParseUCI(reply.BestMove)
	var next *board.Position
	var applied board.Move
	if err == nil && !reply.NoMove {
		next, applied, err = rules.Apply(pos, m)
	}
	if err != nil || reply.NoMove {
		return c.errorResponse(&core.EngineError{
			Err:           core.ErrEngineProtocol,
			AdapterID:     reply.AdapterID,
			CorrelationID: reply.CorrelationID,
			Detail:        fmt.Sprintf("unusable suggestion %q", reply.BestMove),
		})
	}
	san, _ := rules.SAN(pos, applied)

	// Remember the suggestion for apply_hint, unless the game moved on
	h, err = c.store.Acquire(context.WithoutCancel(ctx), cmd.Identity, nil)
	if err != nil {
		return c.errorResponse(core.ErrSuperseded)
	}
	g = h.Session()
	if g.GameID != gameID || !g.Position.Equal(pos) {
		h.Release()
		return c.errorResponse(core.ErrSuperseded)
	}
	g.Hint = &session.Hint{FEN: pos.FEN(), Move: applied.String(), Score: reply.Score, Mate: reply.Mate}
	h.Commit()
	h.Release()

	text := render.HintCaption(san, applied.String(), render.EvalText(reply.Score, reply.Mate, pos.Turn()))
	return Response{
		Success: true,
		Data: core.HintResponse{
			Move:    applied.String(),
			SAN:     san,
			Score:   reply.Score,
			Mate:    reply.Mate,
			Message: text,
		},
		Text:  text,
		Board: &render.Request{Identity: cmd.Identity, FEN: next.FEN(), LastMove: &applied, Caption: text},
	}
}

// handleEval reports the engine's evaluation of the current position
func (c *Coordinator) handleEval(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, true)
	if err != nil {
		return c.errorResponse(err)
	}
	g := h.Session()
	switch {
	case g.Status.Over():
		h.Release()
		return c.errorResponse(core.ErrGameOver)
	case g.Pending != "":
		h.Release()
		return c.errorResponse(core.ErrEngineThinking)
	}
	pos := g.Position
	h.Release()

	reply, err := c.advise(ctx, cmd.Identity, pos.FEN())
	if err != nil {
		return c.errorResponse(err)
	}
	text := "Evaluation: " + render.EvalText(reply.Score, reply.Mate, pos.Turn())
	return Response{
		Success: true,
		Data: core.EvalResponse{
			FEN:     pos.FEN(),
			Score:   reply.Score,
			Mate:    reply.Mate,
			Depth:   reply.Depth,
			Message: text,
		},
		Text: text,
	}
}

// handleResign ends the game in the engine's favour
func (c *Coordinator) handleResign(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, false)
	if err != nil {
		return c.errorResponse(err)
	}
	g := h.Session()
	if g.Status.Over() {
		h.Release()
		return c.errorResponse(core.ErrGameOver)
	}
	c.cancelInflight(g.Identity)
	g.Status = core.StatusResigned
	g.Winner = g.EngineColor()
	g.Phase = core.PhaseGameOver
	g.Pending = ""
	h.Commit()
	snap := g.Clone()
	h.Release()

	c.notify(snap)
	c.archive(snap)
	c.log.Info().Str("identity", snap.Identity).Str("game", snap.GameID).Msg("human resigned")
	return c.okResponse(snap, nil, "")
}

// handleBoard returns the current board without changing anything
func (c *Coordinator) handleBoard(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, true)
	if err != nil {
		return c.errorResponse(err)
	}
	snap := h.Session().Clone()
	h.Release()

	text := render.StatusText(outcome(snap))
	return Response{
		Success: true,
		Data: core.BoardResponse{
			FEN:   snap.Position.FEN(),
			Board: snap.Position.ToASCII(),
		},
		Text:  text,
		Board: c.boardRequest(snap, text),
	}
}

// handleFEN returns the current position in FEN
func (c *Coordinator) handleFEN(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, true)
	if err != nil {
		return c.errorResponse(err)
	}
	fen := h.Session().Position.FEN()
	h.Release()

	return Response{
		Success: true,
		Data:    core.BoardResponse{FEN: fen},
		Text:    fen,
	}
}

// handleUndo takes back moves. Against the engine, taking back a human move
// also takes back the engine reply before it so the human is to move again.
func (c *Coordinator) handleUndo(ctx context.Context, cmd Command) Response {
	args := core.UndoRequest{Count: 1}
	if req, ok := cmd.Args.(core.UndoRequest); ok && req.Count > 0 {
		args = req
	}

	h, err := c.acquire(ctx, cmd.Identity, false)
	if err != nil {
		return c.errorResponse(err)
	}
	g := h.Session()
	switch {
	case g.Pending != "":
		h.Release()
		return c.errorResponse(core.ErrEngineThinking)
	case g.Status == core.StatusResigned || g.Status == core.StatusAbandoned:
		h.Release()
		return c.errorResponse(core.ErrGameOver)
	}

	before := len(g.Moves)
	if err := g.Pop(args.Count); err != nil {
		h.Release()
		return c.errorResponse(err)
	}
	if g.EngineToMove() && len(g.Moves) > 0 {
		// the engine's reply goes too; a move is left so Pop cannot fail
		_ = g.Pop(1)
	}
	taken := before - len(g.Moves)

	g.Status = core.StatusInProgress
	g.Terminal = rules.TerminalNone
	g.Winner = 0
	g.Phase = core.PhaseAwaitingHuman
	var req engine.Request
	engineTurn := g.EngineToMove()
	if engineTurn {
		req = c.prepareEngineTurn(g)
	}
	h.Commit()
	snap := g.Clone()
	identity := g.Identity
	h.Release()
	c.notify(snap)

	intro := fmt.Sprintf("Took back %d move(s).", taken)
	if !engineTurn {
		return c.okResponse(snap, nil, intro)
	}
	after, info, err := c.playEngine(ctx, identity, req)
	if err != nil {
		return c.turnError(err, after, nil)
	}
	return c.okResponse(after, info, intro+"\n"+render.MoveCaption("Engine", info.SAN, info.Move))
}

// handleReset removes the session and aborts its engine requests
func (c *Coordinator) handleReset(ctx context.Context, cmd Command) Response {
	h, err := c.acquire(ctx, cmd.Identity, false)
	if err != nil {
		return c.errorResponse(err)
	}
	c.cancelInflight(cmd.Identity)
	c.retire(h.Session())
	h.Remove("reset")
	c.waiters.Drop(cmd.Identity)

	return Response{
		Success: true,
		Text:    "Game reset. Start a new game when you are ready.",
	}
}
