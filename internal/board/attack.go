package board

import "chessbot/internal/core"

var (
	knightSteps  = [][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	kingSteps    = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	diagonalDirs = [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
	straightDirs = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
)

// KingSquare returns the square of the given side's king, or NoSquare
func (p *Position) KingSquare(c core.Color) Square {
	king := pieceLetter(c, 'k')
	for i, pc := range p.squares {
		if pc == king {
			return Square(i)
		}
	}
	return NoSquare
}

// InCheck reports whether the given side's king is attacked
func (p *Position) InCheck(c core.Color) bool {
	k := p.KingSquare(c)
	if k == NoSquare {
		return false
	}
	return p.IsAttacked(k, core.OppositeColor(c))
}

// IsAttacked reports whether sq is attacked by any piece of color by
func (p *Position) IsAttacked(sq Square, by core.Color) bool {
	file, rank := sq.File(), sq.Rank()

	// Pawns attack diagonally forward, so look one rank behind the target
	pawnRank := rank - 1
	if by == core.ColorBlack {
		pawnRank = rank + 1
	}
	pawn := pieceLetter(by, 'p')
	for _, df := range []int{-1, 1} {
		if s := NewSquare(file+df, pawnRank); s != NoSquare && p.squares[s] == pawn {
			return true
		}
	}

	if p.stepAttack(file, rank, knightSteps, pieceLetter(by, 'n')) {
		return true
	}
	if p.stepAttack(file, rank, kingSteps, pieceLetter(by, 'k')) {
		return true
	}

	queen := pieceLetter(by, 'q')
	if p.slideAttack(file, rank, diagonalDirs, pieceLetter(by, 'b'), queen) {
		return true
	}
	return p.slideAttack(file, rank, straightDirs, pieceLetter(by, 'r'), queen)
}

func (p *Position) stepAttack(file, rank int, steps [][2]int, attacker byte) bool {
	for _, st := range steps {
		if s := NewSquare(file+st[0], rank+st[1]); s != NoSquare && p.squares[s] == attacker {
			return true
		}
	}
	return false
}

func (p *Position) slideAttack(file, rank int, dirs [][2]int, slider, queen byte) bool {
	for _, d := range dirs {
		f, r := file+d[0], rank+d[1]
		for {
			s := NewSquare(f, r)
			if s == NoSquare {
				break
			}
			if pc := p.squares[s]; pc != 0 {
				if pc == slider || pc == queen {
					return true
				}
				break // blocked
			}
			f, r = f+d[0], r+d[1]
		}
	}
	return false
}
