package session

import (
	"encoding/json"
	"fmt"
	"time"

	"chessbot/internal/board"
	"chessbot/internal/core"
	"chessbot/internal/rules"
)

// Hint is the last advisory suggestion, valid only for the position it was computed for
type Hint struct {
	FEN   string `json:"fen"`
	Move  string `json:"move"`
	Score int    `json:"score,omitempty"`
	Mate  int    `json:"mate,omitempty"`
}

// GameSession is one identity's game against the engine. Only the
// coordinator mutates it, and only while holding the store's handle.
type GameSession struct {
	Identity string
	GameID   string
	Initial  *board.Position
	Position *board.Position
	Moves    []board.Move
	Human    core.Color
	Level    int
	Status   core.Status
	Terminal rules.Terminal // rule that ended the game, if any
	Winner   core.Color     // set for checkmate and resignation
	Phase    core.Phase

	// Pending is the correlation id of the outstanding engine turn, empty when
	// none is in flight. Replies with any other id are stale.
	Pending string
	Hint    *Hint

	// Version counts commits, watchers compare it to detect changes
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time

	line []*board.Position // Initial, then the position after each move
}

// NewGameSession starts a game from start with the human playing human
func NewGameSession(identity, gameID string, start *board.Position, human core.Color, level int, now time.Time) *GameSession {
	return &GameSession{
		Identity:  identity,
		GameID:    gameID,
		Initial:   start,
		Position:  start,
		Human:     human,
		Level:     level,
		Status:    core.StatusInProgress,
		Phase:     core.PhaseAwaitingHuman,
		CreatedAt: now,
		UpdatedAt: now,
		line:      []*board.Position{start},
	}
}

// EngineColor is the side the engine plays
func (g *GameSession) EngineColor() core.Color {
	return core.OppositeColor(g.Human)
}

// EngineToMove reports whether the engine owes the next move
func (g *GameSession) EngineToMove() bool {
	return !g.Status.Over() && g.Position.Turn() == g.EngineColor()
}

// Push records a committed move and the position it produced
func (g *GameSession) Push(m board.Move, next *board.Position) {
	g.ensureLine()
	g.Moves = append(g.Moves, m)
	g.Position = next
	g.line = append(g.line, next)
	g.Hint = nil
}

// Pop removes the last n plies and restores the earlier position
func (g *GameSession) Pop(n int) error {
	if n < 1 || n > len(g.Moves) {
		return core.ErrNothingToUndo
	}
	g.ensureLine()
	keep := len(g.Moves) - n
	g.Moves = g.Moves[:keep:keep]
	g.line = g.line[: keep+1 : keep+1]
	g.Position = g.line[keep]
	g.Hint = nil
	return nil
}

// LastMove returns the most recent move
func (g *GameSession) LastMove() (board.Move, bool) {
	if len(g.Moves) == 0 {
		return board.Move{}, false
	}
	return g.Moves[len(g.Moves)-1], true
}

// History returns the positions before the current one, oldest first
func (g *GameSession) History() []*board.Position {
	g.ensureLine()
	return g.line[:len(g.line)-1]
}

// ensureLine rebuilds the position line when a session was built without it
func (g *GameSession) ensureLine() {
	if len(g.line) == len(g.Moves)+1 {
		return
	}
	line, _, err := rules.Line(g.Initial, g.Moves)
	if err != nil {
		// Moves were validated on the way in; fall back to the current position only
		g.line = append(make([]*board.Position, len(g.Moves)), g.Position)
		return
	}
	g.line = line
}

// Clone returns a copy safe to read after the handle is released.
// Positions are immutable and shared.
func (g *GameSession) Clone() *GameSession {
	c := *g
	c.Moves = append([]board.Move(nil), g.Moves...)
	c.line = append([]*board.Position(nil), g.line...)
	if g.Hint != nil {
		h := *g.Hint
		c.Hint = &h
	}
	return &c
}

// MoveStrings returns the move record in UCI notation
func (g *GameSession) MoveStrings() []string {
	out := make([]string, len(g.Moves))
	for i, m := range g.Moves {
		out[i] = m.String()
	}
	return out
}

type sessionRecord struct {
	Identity   string    `json:"identity"`
	GameID     string    `json:"game_id"`
	InitialFEN string    `json:"initial_fen"`
	Moves      []string  `json:"moves"`
	FEN        string    `json:"fen"`
	Human      string    `json:"human"`
	Level      int       `json:"level"`
	Status     string    `json:"status"`
	Terminal   string    `json:"terminal,omitempty"`
	Winner     string    `json:"winner,omitempty"`
	Phase      string    `json:"phase"`
	Hint       *Hint     `json:"hint,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MarshalJSON stores the initial position and the move record; the current
// position is kept only as a checksum for the replay on load
func (g *GameSession) MarshalJSON() ([]byte, error) {
	rec := sessionRecord{
		Identity:   g.Identity,
		GameID:     g.GameID,
		InitialFEN: g.Initial.FEN(),
		Moves:      g.MoveStrings(),
		FEN:        g.Position.FEN(),
		Human:      g.Human.String(),
		Level:      g.Level,
		Status:     g.Status.String(),
		Phase:      g.Phase.String(),
		Hint:       g.Hint,
		Version:    g.Version,
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.UpdatedAt,
	}
	if g.Terminal != rules.TerminalNone {
		rec.Terminal = g.Terminal.String()
	}
	if g.Winner != 0 {
		rec.Winner = g.Winner.String()
	}
	return json.Marshal(rec)
}

// UnmarshalJSON replays the move record from the initial position and
// rejects records whose replay does not reach the stored position
func (g *GameSession) UnmarshalJSON(data []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	initial, err := board.ParseFEN(rec.InitialFEN)
	if err != nil {
		return fmt.Errorf("session %s: %w", rec.Identity, err)
	}
	moves := make([]board.Move, 0, len(rec.Moves))
	for _, s := range rec.Moves {
		m, err := board.ParseUCI(s)
		if err != nil {
			return fmt.Errorf("session %s: %w", rec.Identity, err)
		}
		moves = append(moves, m)
	}
	line, applied, err := rules.Line(initial, moves)
	if err != nil {
		return fmt.Errorf("session %s: replay: %w", rec.Identity, err)
	}
	current := line[len(line)-1]
	if current.FEN() != rec.FEN {
		return fmt.Errorf("session %s: replay reached %q, record says %q", rec.Identity, current.FEN(), rec.FEN)
	}

	human, ok := core.ParseColor(rec.Human)
	if !ok {
		return fmt.Errorf("session %s: invalid color %q", rec.Identity, rec.Human)
	}
	status, ok := core.ParseStatus(rec.Status)
	if !ok {
		return fmt.Errorf("session %s: invalid status %q", rec.Identity, rec.Status)
	}
	var winner core.Color
	if rec.Winner != "" {
		winner, _ = core.ParseColor(rec.Winner)
	}

	*g = GameSession{
		Identity:  rec.Identity,
		GameID:    rec.GameID,
		Initial:   initial,
		Position:  current,
		Moves:     applied,
		Human:     human,
		Level:     rec.Level,
		Status:    status,
		Terminal:  rules.ParseTerminal(rec.Terminal),
		Winner:    winner,
		Phase:     parsePhase(rec.Phase, status),
		Hint:      rec.Hint,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		line:      line,
	}
	return nil
}

// parsePhase restores the coordinator phase. A pending engine turn does not
// survive a restart, the session stays awaiting-engine-move and retryable.
func parsePhase(s string, status core.Status) core.Phase {
	if status.Over() {
		return core.PhaseGameOver
	}
	for p := core.PhaseAwaitingHuman; p <= core.PhaseGameOver; p++ {
		if p.String() == s {
			return p
		}
	}
	return core.PhaseAwaitingHuman
}
