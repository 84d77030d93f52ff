package rules

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

func mustFEN(t *testing.T, fen string) *board.Position {
	t.Helper()
	p, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q) error = %v", fen, err)
	}
	return p
}

func mustUCI(t *testing.T, s string) board.Move {
	t.Helper()
	m, err := board.ParseUCI(s)
	if err != nil {
		t.Fatalf("ParseUCI(%q) error = %v", s, err)
	}
	return m
}

func TestApplyOpeningMove(t *testing.T) {
	t.Parallel()
	start := board.StartPosition()
	next, applied, err := Apply(start, mustUCI(t, "e2e4"))
	if err != nil {
		t.Fatalf("Apply(e2e4) error = %v", err)
	}
	if next.Turn() != core.ColorBlack {
		t.Errorf("Turn() = %v, want black", next.Turn())
	}
	if applied.String() != "e2e4" {
		t.Errorf("applied = %v, want e2e4", applied)
	}
	if start.FEN() != board.StartingFEN {
		t.Errorf("start position mutated: %s", start.FEN())
	}
}

func TestApplyRejectsIllegal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fen    string
		move   string
		reason string
	}{
		{"pawn three squares", board.StartingFEN, "e2e5", ""},
		{"empty origin", board.StartingFEN, "e4e5", "no piece on e4"},
		{"opponent piece", board.StartingFEN, "e7e5", "not your piece on e7"},
		{"missing promotion", "8/4P3/8/8/8/8/k7/4K3 w - - 0 1", "e7e8", "promotion piece required"},
		{"king into check", "4k3/8/8/8/8/8/3r4/4K3 w - - 0 1", "e1d1", ""},
		{"pinned piece", "4k3/4r3/8/8/8/8/4B3/4K3 w - - 0 1", "e2d3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := mustFEN(t, tt.fen)
			_, _, err := Apply(p, mustUCI(t, tt.move))
			var ime *core.IllegalMoveError
			if !errors.As(err, &ime) {
				t.Fatalf("Apply(%s) error = %v, want IllegalMoveError", tt.move, err)
			}
			if !errors.Is(err, core.ErrIllegalMove) {
				t.Errorf("error does not unwrap to ErrIllegalMove")
			}
			if tt.reason != "" && ime.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", ime.Reason, tt.reason)
			}
			if p.FEN() != tt.fen {
				t.Errorf("position mutated to %s", p.FEN())
			}
		})
	}
}

// Every legal move flips the side to move and changes exactly the squares its
// semantics allow.
func TestApplyMoveSemantics(t *testing.T) {
	t.Parallel()
	fens := []string{
		board.StartingFEN,
		"r3k2r/pppq1ppp/2n2n2/3pp3/1b1PP3/2N2N2/PPPQ1PPP/R3K2R w KQkq - 4 8",
		"4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 2",
		"8/4P3/8/8/8/8/k7/4K3 w - - 0 1",
		"r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1",
	}
	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			t.Parallel()
			p := mustFEN(t, fen)
			moves, err := LegalMoves(p)
			if err != nil {
				t.Fatalf("LegalMoves() error = %v", err)
			}
			if len(moves) == 0 {
				t.Fatal("LegalMoves() returned no moves")
			}
			for _, m := range moves {
				next, applied, err := Apply(p, m)
				if err != nil {
					t.Fatalf("Apply(%v) error = %v", m, err)
				}
				if next.Turn() == p.Turn() {
					t.Errorf("Apply(%v) did not flip side to move", m)
				}
				checkChangedSquares(t, p, next, applied)
			}
		})
	}
}

func checkChangedSquares(t *testing.T, before, after *board.Position, m board.Move) {
	t.Helper()
	allowed := map[board.Square]bool{m.From: true, m.To: true}
	rank := m.From.Rank()
	switch m.Flag {
	case board.FlagCastleKingside:
		allowed[board.NewSquare(7, rank)] = true
		allowed[board.NewSquare(5, rank)] = true
	case board.FlagCastleQueenside:
		allowed[board.NewSquare(0, rank)] = true
		allowed[board.NewSquare(3, rank)] = true
	case board.FlagEnPassant:
		allowed[board.NewSquare(m.To.File(), rank)] = true
	}
	for sq := board.Square(0); sq < 64; sq++ {
		if before.PieceAt(sq) != after.PieceAt(sq) && !allowed[sq] {
			t.Errorf("%v changed unrelated square %v", m, sq)
		}
	}
	moved := before.PieceAt(m.From)
	want := moved
	if m.Promotion != 0 {
		want = m.Promotion
		if board.PieceColor(moved) == core.ColorWhite {
			want -= 'a' - 'A'
		}
	}
	if after.PieceAt(m.To) != want {
		t.Errorf("%v: piece on %v = %c, want %c", m, m.To, after.PieceAt(m.To), want)
	}
	if after.PieceAt(m.From) != 0 {
		t.Errorf("%v: origin %v not empty", m, m.From)
	}
}

func TestCastlingRights(t *testing.T) {
	t.Parallel()
	const fen = "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"
	tests := []struct {
		name  string
		moves []string
		want  board.CastlingRights
	}{
		{"king moves", []string{"e1e2"}, board.CastlingRights{BlackKingside: true, BlackQueenside: true}},
		{"rook moves and returns", []string{"h1h3", "a8b8", "h3h1"}, board.CastlingRights{WhiteQueenside: true, BlackKingside: true}},
		{"rook captured", []string{"a1a8"}, board.CastlingRights{WhiteKingside: true, BlackKingside: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := mustFEN(t, fen)
			for _, s := range tt.moves {
				var err error
				if p, _, err = Apply(p, mustUCI(t, s)); err != nil {
					t.Fatalf("Apply(%s) error = %v", s, err)
				}
			}
			if diff := cmp.Diff(tt.want, p.Castling()); diff != "" {
				t.Errorf("Castling() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCastlingThroughCheckIsIllegal(t *testing.T) {
	t.Parallel()
	// Black rook on f8 covers f1
	p := mustFEN(t, "4kr2/8/8/8/8/8/8/4K2R w K - 0 1")
	if IsLegal(p, mustUCI(t, "e1g1")) {
		t.Error("IsLegal(e1g1) = true through an attacked square")
	}
}

func TestSpecialMoves(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		fen      string
		move     string
		wantFlag board.MoveFlag
		wantFEN  string
	}{
		{"kingside castle", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "e1g1", board.FlagCastleKingside,
			"r3k2r/8/8/8/8/8/8/R4RK1 b kq - 1 1"},
		{"queenside castle", "r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1", "e8c8", board.FlagCastleQueenside,
			"2kr3r/8/8/8/8/8/8/R3K2R w KQ - 1 2"},
		{"en passant", "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 2", "e5d6", board.FlagEnPassant,
			"4k3/8/3P4/8/8/8/8/4K3 b - - 0 2"},
		{"promotion", "8/4P3/8/8/8/8/k7/4K3 w - - 0 1", "e7e8q", board.FlagNone,
			"4Q3/8/8/8/8/8/k7/4K3 b - - 0 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next, applied, err := Apply(mustFEN(t, tt.fen), mustUCI(t, tt.move))
			if err != nil {
				t.Fatalf("Apply(%s) error = %v", tt.move, err)
			}
			if applied.Flag != tt.wantFlag {
				t.Errorf("Flag = %v, want %v", applied.Flag, tt.wantFlag)
			}
			if next.FEN() != tt.wantFEN {
				t.Errorf("FEN() = %q, want %q", next.FEN(), tt.wantFEN)
			}
		})
	}
}

func TestTerminalStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		fen  string
		move string // applied first when set
		want Terminal
	}{
		{"start", board.StartingFEN, "", TerminalNone},
		{"back rank mate", "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", "a1a8", TerminalCheckmate},
		{"check is not mate", "6k1/6pp/8/8/8/8/8/R5K1 w - - 0 1", "a1a8", TerminalNone},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", "", TerminalStalemate},
		{"bare kings", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", "", TerminalInsufficientMaterial},
		{"king and bishop", "4k3/8/8/8/8/8/8/2B1K3 w - - 0 1", "", TerminalInsufficientMaterial},
		{"bishops same colour", "4kb2/8/8/8/8/8/8/2B1K3 w - - 0 1", "", TerminalInsufficientMaterial},
		{"two knights can still play", "4kn2/8/8/8/8/8/8/1N2K3 w - - 0 1", "", TerminalNone},
		{"fifty moves", "4k3/8/8/8/8/8/8/R3K3 w - - 99 80", "a1a2", TerminalFiftyMove},
		{"mate beats fifty moves", "6k1/5ppp/8/8/8/8/8/R5K1 w - - 99 80", "a1a8", TerminalCheckmate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := mustFEN(t, tt.fen)
			if tt.move != "" {
				var err error
				if p, _, err = Apply(p, mustUCI(t, tt.move)); err != nil {
					t.Fatalf("Apply(%s) error = %v", tt.move, err)
				}
			}
			got, err := TerminalStatus(p)
			if err != nil {
				t.Fatalf("TerminalStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TerminalStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThreefoldRepetition(t *testing.T) {
	t.Parallel()
	var moves []board.Move
	for _, s := range []string{"g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1", "f6g8"} {
		moves = append(moves, mustUCI(t, s))
	}
	line, _, err := Line(board.StartPosition(), moves)
	if err != nil {
		t.Fatalf("Line() error = %v", err)
	}
	last := len(line) - 1

	got, _ := TerminalStatus(line[last-4], line[:last-4]...)
	if got != TerminalNone {
		t.Errorf("second occurrence: TerminalStatus() = %v, want none", got)
	}
	got, _ = TerminalStatus(line[last], line[:last]...)
	if got != TerminalRepetition {
		t.Errorf("third occurrence: TerminalStatus() = %v, want %v", got, TerminalRepetition)
	}
}

func TestParseMove(t *testing.T) {
	t.Parallel()
	castle := "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"
	tests := []struct {
		name    string
		fen     string
		text    string
		want    string
		wantErr bool
	}{
		{"uci", board.StartingFEN, "e2e4", "e2e4", false},
		{"san pawn", board.StartingFEN, "e4", "e2e4", false},
		{"san knight", board.StartingFEN, "Nf3", "g1f3", false},
		{"san castle", castle, "O-O", "e1g1", false},
		{"san castle zeros", castle, "0-0-0", "e1c1", false},
		{"san promotion", "8/4P3/8/8/8/8/k7/4K3 w - - 0 1", "e8=Q", "e7e8q", false},
		{"illegal uci", board.StartingFEN, "e2e5", "", true},
		{"illegal san", board.StartingFEN, "Nf4", "", true},
		{"garbage", board.StartingFEN, "hello", "", true},
		{"empty", board.StartingFEN, "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := ParseMove(mustFEN(t, tt.fen), tt.text)
			if tt.wantErr {
				if !errors.Is(err, core.ErrIllegalMove) {
					t.Errorf("ParseMove(%q) error = %v, want ErrIllegalMove", tt.text, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMove(%q) error = %v", tt.text, err)
			}
			if m.String() != tt.want {
				t.Errorf("ParseMove(%q) = %v, want %v", tt.text, m, tt.want)
			}
		})
	}
}

func TestPGN(t *testing.T) {
	t.Parallel()
	var moves []board.Move
	for _, s := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		moves = append(moves, mustUCI(t, s))
	}
	got, err := PGN(board.StartPosition(), moves, []PGNTag{{"White", "u1"}, {"Black", "Stockfish"}}, "0-1")
	if err != nil {
		t.Fatalf("PGN() error = %v", err)
	}
	want := "[White \"u1\"]\n[Black \"Stockfish\"]\n[Result \"0-1\"]\n\n1. f3 e5 2. g4 Qh4# 0-1\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PGN() mismatch (-want +got):\n%s", diff)
	}
}
