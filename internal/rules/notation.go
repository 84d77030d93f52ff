package rules

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

// ParseMove resolves user text against p. Coordinate notation ("e2e4",
// "e7e8q") is tried first, then standard algebraic ("Nf3", "O-O", "exd5").
func ParseMove(p *board.Position, text string) (board.Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return board.Move{}, &core.IllegalMoveError{Move: text, Reason: "empty move"}
	}
	pos, err := decode(p)
	if err != nil {
		return board.Move{}, err
	}

	if m, err := board.ParseUCI(text); err == nil {
		lm, ok := findMove(pos, m)
		if !ok {
			return board.Move{}, &core.IllegalMoveError{Move: m.String(), Reason: illegalReason(p, m)}
		}
		return fromLib(lm), nil
	}

	san := strings.NewReplacer("0-0-0", "O-O-O", "0-0", "O-O").Replace(text)
	lm, err := chess.AlgebraicNotation{}.Decode(pos, san)
	if err != nil {
		return board.Move{}, &core.IllegalMoveError{Move: text, Reason: "not a legal move in UCI or SAN notation"}
	}
	return fromLib(lm), nil
}

// SAN encodes a legal move of p in standard algebraic notation
func SAN(p *board.Position, m board.Move) (string, error) {
	pos, err := decode(p)
	if err != nil {
		return "", err
	}
	lm, ok := findMove(pos, m)
	if !ok {
		return "", &core.IllegalMoveError{Move: m.String(), Reason: illegalReason(p, m)}
	}
	return chess.AlgebraicNotation{}.Encode(pos, lm), nil
}

// Line replays moves from start and returns every position of the line,
// start first. It fails on the first illegal move.
func Line(start *board.Position, moves []board.Move) ([]*board.Position, []board.Move, error) {
	positions := make([]*board.Position, 0, len(moves)+1)
	applied := make([]board.Move, 0, len(moves))
	positions = append(positions, start)
	cur := start
	for i, m := range moves {
		next, lm, err := Apply(cur, m)
		if err != nil {
			return nil, nil, fmt.Errorf("ply %d: %w", i+1, err)
		}
		positions = append(positions, next)
		applied = append(applied, lm)
		cur = next
	}
	return positions, applied, nil
}
