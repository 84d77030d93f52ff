package rules

import (
	"fmt"
	"strings"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

// PGNTag is one header pair, written in the order given
type PGNTag struct {
	Name  string
	Value string
}

// PGN renders a game line as PGN movetext with headers. result is one of
// "1-0", "0-1", "1/2-1/2" or "*".
func PGN(start *board.Position, moves []board.Move, tags []PGNTag, result string) (string, error) {
	if result == "" {
		result = "*"
	}
	var sb strings.Builder
	for _, t := range tags {
		fmt.Fprintf(&sb, "[%s %q]\n", t.Name, t.Value)
	}
	if start.FEN() != board.StartingFEN {
		fmt.Fprintf(&sb, "[SetUp \"1\"]\n[FEN %q]\n", start.FEN())
	}
	fmt.Fprintf(&sb, "[Result %q]\n\n", result)

	cur := start
	col := 0
	write := func(tok string) {
		if col > 0 && col+len(tok)+1 > 80 {
			sb.WriteByte('\n')
			col = 0
		} else if col > 0 {
			sb.WriteByte(' ')
			col++
		}
		sb.WriteString(tok)
		col += len(tok)
	}
	for i, m := range moves {
		san, err := SAN(cur, m)
		if err != nil {
			return "", fmt.Errorf("ply %d: %w", i+1, err)
		}
		if i == 0 && cur.Turn() == core.ColorBlack {
			write(fmt.Sprintf("%d...", cur.FullmoveNumber()))
		} else if cur.Turn() == core.ColorWhite {
			write(fmt.Sprintf("%d.", cur.FullmoveNumber()))
		}
		write(san)
		next, _, err := Apply(cur, m)
		if err != nil {
			return "", fmt.Errorf("ply %d: %w", i+1, err)
		}
		cur = next
	}
	write(result)
	sb.WriteByte('\n')
	return sb.String(), nil
}
