// Package rules decides move legality over immutable board positions. Move
// generation is delegated to github.com/notnil/chess; every call decodes a
// fresh library position from FEN so nothing is cached across positions.
package rules

import (
	"fmt"

	"github.com/notnil/chess"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

// decode builds a library position for p. The returned game owns the position.
func decode(p *board.Position) (*chess.Position, error) {
	opt, err := chess.FEN(p.FEN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFEN, err)
	}
	return chess.NewGame(opt).Position(), nil
}

// LegalMoves returns every legal move of the side to move, recomputed per call
func LegalMoves(p *board.Position) ([]board.Move, error) {
	pos, err := decode(p)
	if err != nil {
		return nil, err
	}
	valid := pos.ValidMoves()
	moves := make([]board.Move, 0, len(valid))
	for _, m := range valid {
		moves = append(moves, fromLib(m))
	}
	return moves, nil
}

// IsLegal reports whether m is legal in p
func IsLegal(p *board.Position, m board.Move) bool {
	pos, err := decode(p)
	if err != nil {
		return false
	}
	_, ok := findMove(pos, m)
	return ok
}

// Apply returns the position after m. An illegal move fails with
// *core.IllegalMoveError and p is left untouched.
func Apply(p *board.Position, m board.Move) (*board.Position, board.Move, error) {
	pos, err := decode(p)
	if err != nil {
		return nil, board.Move{}, err
	}
	lm, ok := findMove(pos, m)
	if !ok {
		return nil, board.Move{}, &core.IllegalMoveError{Move: m.String(), Reason: illegalReason(p, m)}
	}
	next, err := board.ParseFEN(pos.Update(lm).String())
	if err != nil {
		return nil, board.Move{}, fmt.Errorf("rebuild position after %s: %w", m, err)
	}
	return next, fromLib(lm), nil
}

// ValidatePosition parses a user supplied FEN and checks the rules library
// accepts it as a playable position
func ValidatePosition(fen string) (*board.Position, error) {
	p, err := board.ParseFEN(fen)
	if err != nil {
		return nil, err
	}
	if _, err := decode(p); err != nil {
		return nil, err
	}
	return p, nil
}

func findMove(pos *chess.Position, m board.Move) (*chess.Move, bool) {
	for _, lm := range pos.ValidMoves() {
		if fromLib(lm).SameSquares(m) {
			return lm, true
		}
	}
	return nil, false
}

func illegalReason(p *board.Position, m board.Move) string {
	pc := p.PieceAt(m.From)
	switch {
	case pc == 0:
		return "no piece on " + m.From.String()
	case board.PieceColor(pc) != p.Turn():
		return "not your piece on " + m.From.String()
	case board.PieceKind(pc) == 'p' && m.Promotion == 0 && (m.To.Rank() == 0 || m.To.Rank() == 7):
		return "promotion piece required"
	case board.PieceKind(pc) != 'p' && m.Promotion != 0:
		return "only pawns promote"
	}
	return ""
}

func fromLib(m *chess.Move) board.Move {
	bm := board.Move{
		From: board.Square(m.S1()),
		To:   board.Square(m.S2()),
	}
	switch m.Promo() {
	case chess.Queen:
		bm.Promotion = 'q'
	case chess.Rook:
		bm.Promotion = 'r'
	case chess.Bishop:
		bm.Promotion = 'b'
	case chess.Knight:
		bm.Promotion = 'n'
	}
	switch {
	case m.HasTag(chess.KingSideCastle):
		bm.Flag = board.FlagCastleKingside
	case m.HasTag(chess.QueenSideCastle):
		bm.Flag = board.FlagCastleQueenside
	case m.HasTag(chess.EnPassant):
		bm.Flag = board.FlagEnPassant
	}
	return bm
}
