package board

import (
	"fmt"
	"strconv"
	"strings"

	"chessbot/internal/core"
)

const (
	StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

type CastlingRights struct {
	WhiteKingside  bool
	WhiteQueenside bool
	BlackKingside  bool
	BlackQueenside bool
}

func (c CastlingRights) String() string {
	var sb strings.Builder
	if c.WhiteKingside {
		sb.WriteByte('K')
	}
	if c.WhiteQueenside {
		sb.WriteByte('Q')
	}
	if c.BlackKingside {
		sb.WriteByte('k')
	}
	if c.BlackQueenside {
		sb.WriteByte('q')
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

// Position is an immutable chess position. Pieces are stored as FEN letters,
// 0 is an empty square. The zero value is not a valid position, use ParseFEN.
type Position struct {
	squares   [64]byte
	turn      core.Color
	castling  CastlingRights
	enPassant Square
	halfmove  int
	fullmove  int
}

// StartPosition returns a fresh copy of the initial position
func StartPosition() *Position {
	p, err := ParseFEN(StartingFEN)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseFEN parses and validates a FEN string. The clock fields may be omitted
// and default to "0 1".
func ParseFEN(fen string) (*Position, error) {
	parts := strings.Fields(fen)
	if len(parts) == 4 {
		parts = append(parts, "0", "1")
	}
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: expected 6 parts, got %d", core.ErrInvalidFEN, len(parts))
	}

	p := &Position{enPassant: NoSquare}

	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("%w: expected 8 ranks", core.ErrInvalidFEN)
	}
	for r := 0; r < 8; r++ {
		rank := 7 - r
		file := 0
		for _, ch := range ranks[r] {
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			if !strings.ContainsRune("PNBRQKpnbrqk", ch) {
				return nil, fmt.Errorf("%w: unknown piece %q", core.ErrInvalidFEN, ch)
			}
			if file >= 8 {
				return nil, fmt.Errorf("%w: too many pieces in rank %d", core.ErrInvalidFEN, rank+1)
			}
			if (ch == 'P' || ch == 'p') && (rank == 0 || rank == 7) {
				return nil, fmt.Errorf("%w: pawn on rank %d", core.ErrInvalidFEN, rank+1)
			}
			p.squares[NewSquare(file, rank)] = byte(ch)
			file++
		}
		if file != 8 {
			return nil, fmt.Errorf("%w: rank %d has %d files", core.ErrInvalidFEN, rank+1, file)
		}
	}

	switch parts[1] {
	case "w":
		p.turn = core.ColorWhite
	case "b":
		p.turn = core.ColorBlack
	default:
		return nil, fmt.Errorf("%w: turn must be 'w' or 'b'", core.ErrInvalidFEN)
	}

	if parts[2] != "-" {
		for _, ch := range parts[2] {
			switch ch {
			case 'K':
				p.castling.WhiteKingside = true
			case 'Q':
				p.castling.WhiteQueenside = true
			case 'k':
				p.castling.BlackKingside = true
			case 'q':
				p.castling.BlackQueenside = true
			default:
				return nil, fmt.Errorf("%w: castling field %q", core.ErrInvalidFEN, parts[2])
			}
		}
	}

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil || (sq.Rank() != 2 && sq.Rank() != 5) {
			return nil, fmt.Errorf("%w: en-passant square %q", core.ErrInvalidFEN, parts[3])
		}
		p.enPassant = sq
	}

	var err error
	if p.halfmove, err = strconv.Atoi(parts[4]); err != nil || p.halfmove < 0 {
		return nil, fmt.Errorf("%w: halfmove counter", core.ErrInvalidFEN)
	}
	if p.fullmove, err = strconv.Atoi(parts[5]); err != nil || p.fullmove < 1 {
		return nil, fmt.Errorf("%w: fullmove counter", core.ErrInvalidFEN)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	p.clampCastling()
	return p, nil
}

// validate enforces one king per side and that the side not to move is not in check
func (p *Position) validate() error {
	for _, c := range []core.Color{core.ColorWhite, core.ColorBlack} {
		king := pieceLetter(c, 'k')
		n := 0
		for _, pc := range p.squares {
			if pc == king {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("%w: %s has %d kings", core.ErrInvalidFEN, c.Name(), n)
		}
	}
	if p.InCheck(core.OppositeColor(p.turn)) {
		return fmt.Errorf("%w: side not to move is in check", core.ErrInvalidFEN)
	}
	return nil
}

// clampCastling drops rights whose king or rook is no longer on its home square
func (p *Position) clampCastling() {
	if p.squares[sqE1] != 'K' {
		p.castling.WhiteKingside, p.castling.WhiteQueenside = false, false
	}
	if p.squares[sqH1] != 'R' {
		p.castling.WhiteKingside = false
	}
	if p.squares[sqA1] != 'R' {
		p.castling.WhiteQueenside = false
	}
	if p.squares[sqE8] != 'k' {
		p.castling.BlackKingside, p.castling.BlackQueenside = false, false
	}
	if p.squares[sqH8] != 'r' {
		p.castling.BlackKingside = false
	}
	if p.squares[sqA8] != 'r' {
		p.castling.BlackQueenside = false
	}
}

var (
	sqA1 = NewSquare(0, 0)
	sqE1 = NewSquare(4, 0)
	sqH1 = NewSquare(7, 0)
	sqA8 = NewSquare(0, 7)
	sqE8 = NewSquare(4, 7)
	sqH8 = NewSquare(7, 7)
)

// FEN serializes the position
func (p *Position) FEN() string {
	return p.placement() + " " + p.turn.String() + " " + p.castling.String() + " " +
		p.enPassant.String() + " " + strconv.Itoa(p.halfmove) + " " + strconv.Itoa(p.fullmove)
}

func (p *Position) String() string { return p.FEN() }

// RepetitionKey identifies the position for repetition counting: placement,
// turn, castling and en-passant, without the clocks
func (p *Position) RepetitionKey() string {
	return p.placement() + " " + p.turn.String() + " " + p.castling.String() + " " + p.enPassant.String()
}

func (p *Position) placement() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.squares[NewSquare(file, rank)]
			if pc == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(pc)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

func (p *Position) Turn() core.Color {
	return p.turn
}

func (p *Position) Castling() CastlingRights {
	return p.castling
}

func (p *Position) EnPassant() Square {
	return p.enPassant
}

func (p *Position) HalfmoveClock() int {
	return p.halfmove
}

func (p *Position) FullmoveNumber() int {
	return p.fullmove
}

func (p *Position) PieceAt(sq Square) byte {
	if !sq.Valid() {
		return 0
	}
	return p.squares[sq]
}

// Pieces returns the occupied squares with their piece letters
func (p *Position) Pieces() map[Square]byte {
	m := make(map[Square]byte, 32)
	for i, pc := range p.squares {
		if pc != 0 {
			m[Square(i)] = pc
		}
	}
	return m
}

// Equal compares two positions field by field
func (p *Position) Equal(o *Position) bool {
	if p == nil || o == nil {
		return p == o
	}
	return *p == *o
}

// ToASCII creates an ASCII representation of the board
func (p *Position) ToASCII() string {
	var sb strings.Builder
	sb.WriteString("  a b c d e f g h\n")
	for rank := 7; rank >= 0; rank-- {
		sb.WriteString(fmt.Sprintf("%d ", rank+1))
		for file := 0; file < 8; file++ {
			pc := p.squares[NewSquare(file, rank)]
			if pc == 0 {
				sb.WriteString(". ")
			} else {
				sb.WriteString(fmt.Sprintf("%c ", pc))
			}
		}
		sb.WriteString(fmt.Sprintf(" %d\n", rank+1))
	}
	sb.WriteString("  a b c d e f g h")
	return sb.String()
}

// PieceColor returns the owner of a FEN piece letter
func PieceColor(pc byte) core.Color {
	switch {
	case pc >= 'A' && pc <= 'Z':
		return core.ColorWhite
	case pc >= 'a' && pc <= 'z':
		return core.ColorBlack
	default:
		return 0
	}
}

// PieceKind returns the lowercase piece letter
func PieceKind(pc byte) byte {
	if pc >= 'A' && pc <= 'Z' {
		return pc + ('a' - 'A')
	}
	return pc
}

func pieceLetter(c core.Color, kind byte) byte {
	if c == core.ColorWhite {
		return kind - ('a' - 'A')
	}
	return kind
}
