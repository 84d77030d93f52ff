package coordinator

import (
	"errors"

	"chessbot/internal/core"
	"chessbot/internal/render"
	"chessbot/internal/session"
)

func outcome(g *session.GameSession) render.Outcome {
	return render.Outcome{
		Position: g.Position,
		Status:   g.Status,
		Reason:   g.Terminal.Reason(),
		Winner:   g.Winner,
		Human:    g.Human,
	}
}

// sessionResponse builds the standard session view
func (c *Coordinator) sessionResponse(g *session.GameSession, last *core.MoveInfo, message string) core.SessionResponse {
	resp := core.SessionResponse{
		Identity: g.Identity,
		GameID:   g.GameID,
		FEN:      g.Position.FEN(),
		Turn:     g.Position.Turn().String(),
		Human:    g.Human.String(),
		Level:    g.Level,
		Status:   g.Status.String(),
		Phase:    g.Phase.String(),
		Version:  g.Version,
		Moves:    g.MoveStrings(),
		LastMove: last,
		Message:  message,
	}
	if resp.LastMove == nil {
		if m, ok := g.LastMove(); ok {
			resp.LastMove = &core.MoveInfo{
				Move:        m.String(),
				PlayerColor: core.OppositeColor(g.Position.Turn()).String(),
			}
		}
	}
	return resp
}

// boardRequest asks for the current board with the last move highlighted
func (c *Coordinator) boardRequest(g *session.GameSession, caption string) *render.Request {
	req := &render.Request{
		Identity: g.Identity,
		FEN:      g.Position.FEN(),
		Caption:  caption,
	}
	if m, ok := g.LastMove(); ok {
		req.LastMove = &m
	}
	return req
}

// okResponse reports a committed change: lead text, then the game status
func (c *Coordinator) okResponse(g *session.GameSession, last *core.MoveInfo, lead string) Response {
	text := render.StatusText(outcome(g))
	if lead != "" {
		text = lead + "\n" + text
	}
	return Response{
		Success: true,
		Data:    c.sessionResponse(g, last, text),
		Text:    text,
		Board:   c.boardRequest(g, text),
	}
}

// turnError reports a failed engine turn with whatever state the session was left in
func (c *Coordinator) turnError(err error, g *session.GameSession, played *core.MoveInfo) Response {
	resp := c.errorResponse(err)
	if g != nil {
		text := resp.Text + "\n" + render.StatusText(outcome(g))
		resp.Text = text
		resp.Data = c.sessionResponse(g, played, text)
		resp.Board = c.boardRequest(g, text)
	}
	return resp
}

// errorResponse maps err to its code and chat text. Only internal
// failures are logged as errors, the rest are ordinary outcomes.
func (c *Coordinator) errorResponse(err error) Response {
	code := core.CodeFor(err)
	msg := core.UserMessage(err)
	ev := c.log.Debug()
	var engErr *core.EngineError
	if code == core.ErrCodeInternal {
		ev = c.log.Error()
	} else if errors.As(err, &engErr) {
		ev = c.log.Warn()
	}
	ev.Err(err).Str("code", code).Msg("command failed")

	return Response{
		Success: false,
		Text:    msg,
		Error: &core.ErrorResponse{
			Error:   msg,
			Code:    code,
			Details: err.Error(),
		},
	}
}
