package rules

import (
	"github.com/notnil/chess"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

// Terminal is a game-ending condition, TerminalNone while play continues
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCheckmate
	TerminalStalemate
	TerminalInsufficientMaterial
	TerminalFiftyMove
	TerminalRepetition
)

func (t Terminal) String() string {
	switch t {
	case TerminalNone:
		return "none"
	case TerminalCheckmate:
		return "checkmate"
	case TerminalStalemate:
		return "stalemate"
	case TerminalInsufficientMaterial:
		return "draw-insufficient-material"
	case TerminalFiftyMove:
		return "draw-fifty-move"
	case TerminalRepetition:
		return "draw-repetition"
	default:
		return "unknown"
	}
}

// Reason is the human readable draw or end reason
func (t Terminal) Reason() string {
	switch t {
	case TerminalCheckmate:
		return "checkmate"
	case TerminalStalemate:
		return "stalemate"
	case TerminalInsufficientMaterial:
		return "insufficient material"
	case TerminalFiftyMove:
		return "fifty-move rule"
	case TerminalRepetition:
		return "threefold repetition"
	default:
		return ""
	}
}

// Status maps the condition to the session status it produces
func (t Terminal) Status() core.Status {
	switch t {
	case TerminalCheckmate:
		return core.StatusCheckmate
	case TerminalStalemate:
		return core.StatusStalemate
	case TerminalInsufficientMaterial, TerminalFiftyMove, TerminalRepetition:
		return core.StatusDrawByRule
	default:
		return core.StatusInProgress
	}
}

// ParseTerminal is the inverse of Terminal.String
func ParseTerminal(s string) Terminal {
	for t := TerminalNone; t <= TerminalRepetition; t++ {
		if t.String() == s {
			return t
		}
	}
	return TerminalNone
}

// TerminalStatus reports whether p ends the game. history holds the earlier
// positions of the same game line and is only consulted for repetition.
// Checkmate and stalemate take precedence over the automatic draw rules.
func TerminalStatus(p *board.Position, history ...*board.Position) (Terminal, error) {
	pos, err := decode(p)
	if err != nil {
		return TerminalNone, err
	}
	switch pos.Status() {
	case chess.Checkmate:
		return TerminalCheckmate, nil
	case chess.Stalemate:
		return TerminalStalemate, nil
	}
	if HasInsufficientMaterial(p) {
		return TerminalInsufficientMaterial, nil
	}
	if p.HalfmoveClock() >= 100 {
		return TerminalFiftyMove, nil
	}
	if Repetitions(p, history) >= 3 {
		return TerminalRepetition, nil
	}
	return TerminalNone, nil
}

// Repetitions counts occurrences of p's position in the line, p included
func Repetitions(p *board.Position, history []*board.Position) int {
	key := p.RepetitionKey()
	n := 1
	for _, h := range history {
		if h != nil && h.RepetitionKey() == key {
			n++
		}
	}
	return n
}

// HasInsufficientMaterial reports positions where neither side can mate:
// bare kings, a single minor piece, or only bishops all on one square colour
func HasInsufficientMaterial(p *board.Position) bool {
	minors := 0
	light, dark := 0, 0
	knights := 0
	for sq, pc := range p.Pieces() {
		switch board.PieceKind(pc) {
		case 'k':
			continue
		case 'p', 'r', 'q':
			return false
		case 'n':
			knights++
		case 'b':
			if (sq.File()+sq.Rank())%2 == 0 {
				dark++
			} else {
				light++
			}
		}
		minors++
	}
	if minors <= 1 {
		return true
	}
	return knights == 0 && (light == 0 || dark == 0)
}
