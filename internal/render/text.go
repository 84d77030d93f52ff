package render

import (
	"fmt"
	"strings"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

// Outcome is what StatusText needs to know about a game
type Outcome struct {
	Position *board.Position
	Status   core.Status
	Reason   string     // draw or end rule, e.g. "threefold repetition"
	Winner   core.Color // checkmate and resignation
	Human    core.Color
}

// StatusText describes turn, check and the result in chat-ready lines
func StatusText(o Outcome) string {
	var sb strings.Builder
	turn := o.Position.Turn()
	fmt.Fprintf(&sb, "Turn: %s", turn.Name())
	if !o.Status.Over() {
		if turn == o.Human {
			sb.WriteString(" (you)")
		} else {
			sb.WriteString(" (engine)")
		}
	}
	sb.WriteByte('\n')

	if o.Status == core.StatusInProgress && o.Position.InCheck(turn) {
		sb.WriteString("Check!\n")
	}
	switch o.Status {
	case core.StatusCheckmate:
		fmt.Fprintf(&sb, "Checkmate! Winner: %s\n", o.Winner.Name())
	case core.StatusStalemate:
		sb.WriteString("Draw by stalemate\n")
	case core.StatusDrawByRule:
		fmt.Fprintf(&sb, "Draw by %s\n", o.Reason)
	case core.StatusResigned:
		fmt.Fprintf(&sb, "%s resigned. Winner: %s\n", core.OppositeColor(o.Winner).Name(), o.Winner.Name())
	case core.StatusAbandoned:
		sb.WriteString("Game abandoned\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// EvalText formats an engine score given from the side to move as White's
// advantage in pawns, or as a mate distance
func EvalText(score, mate int, sideToMove core.Color) string {
	if sideToMove == core.ColorBlack {
		score, mate = -score, -mate
	}
	if mate != 0 {
		if mate > 0 {
			return fmt.Sprintf("White mates in %d", mate)
		}
		return fmt.Sprintf("Black mates in %d", -mate)
	}
	return fmt.Sprintf("%+.2f", float64(score)/100)
}

// MoveCaption announces a committed move
func MoveCaption(who string, san, uci string) string {
	return fmt.Sprintf("%s played %s (%s)", who, san, uci)
}

// HintCaption presents an advisory suggestion
func HintCaption(san, uci, eval string) string {
	return fmt.Sprintf("Suggested move: %s (%s)\nEvaluation: %s", san, uci, eval)
}
