package board

import (
	"fmt"
	"strings"
)

// MoveFlag marks moves whose side effects go beyond from/to
type MoveFlag uint8

const (
	FlagNone MoveFlag = iota
	FlagCastleKingside
	FlagCastleQueenside
	FlagEnPassant
)

func (f MoveFlag) String() string {
	switch f {
	case FlagCastleKingside:
		return "castle-kingside"
	case FlagCastleQueenside:
		return "castle-queenside"
	case FlagEnPassant:
		return "en-passant"
	default:
		return "none"
	}
}

// Move is a candidate or applied move. Promotion is a lowercase piece letter or 0.
type Move struct {
	From      Square
	To        Square
	Promotion byte
	Flag      MoveFlag
}

// String returns the UCI coordinate form, e.g. "e2e4" or "e7e8q"
func (m Move) String() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != 0 {
		s += string(m.Promotion)
	}
	return s
}

// SameSquares compares origin, destination and promotion, ignoring flags
func (m Move) SameSquares(o Move) bool {
	return m.From == o.From && m.To == o.To && m.Promotion == o.Promotion
}

// ParseUCI checks coordinate notation syntax only, legality is decided by rules
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid UCI move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid UCI move %q: %w", s, err)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid UCI move %q: %w", s, err)
	}
	if from == to {
		return Move{}, fmt.Errorf("invalid UCI move %q: same square", s)
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
			m.Promotion = s[4]
		default:
			return Move{}, fmt.Errorf("invalid UCI move %q: promotion piece", s)
		}
	}
	return m, nil
}
