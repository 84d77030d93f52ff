package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

func TestGatewaySVG(t *testing.T) {
	t.Parallel()
	g := NewGateway()
	m, _ := board.ParseUCI("e2e4")
	art, err := g.Render(context.Background(), "", Request{
		FEN:      "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		LastMove: &m,
		Caption:  "You played e4",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if art.ContentType != "image/svg+xml" {
		t.Errorf("ContentType = %q", art.ContentType)
	}
	if !strings.Contains(string(art.Data), "<svg") {
		t.Errorf("Data is not an SVG document: %.80s", art.Data)
	}
	if art.Caption != "You played e4" {
		t.Errorf("Caption = %q", art.Caption)
	}
}

func TestGatewayASCII(t *testing.T) {
	t.Parallel()
	g := NewGateway()
	m, _ := board.ParseUCI("e2e4")
	art, err := g.Render(context.Background(), FormatASCII, Request{
		FEN:      "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		LastMove: &m,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	lines := strings.Split(string(art.Data), "\n")
	if got, want := lines[7], "2 P P P P * P P P  2"; got != want {
		t.Errorf("rank 2 = %q, want %q", got, want)
	}
	if got, want := lines[5], "4 . . . . P . . .  4"; got != want {
		t.Errorf("rank 4 = %q, want %q", got, want)
	}
}

func TestGatewayErrors(t *testing.T) {
	t.Parallel()
	g := NewGateway()
	if _, err := g.Render(context.Background(), "png", Request{FEN: board.StartingFEN}); !errors.Is(err, core.ErrInvalidArguments) {
		t.Errorf("Render(png) error = %v, want ErrInvalidArguments", err)
	}
	for _, format := range []string{FormatSVG, FormatASCII} {
		if _, err := g.Render(context.Background(), format, Request{FEN: "not a fen"}); !errors.Is(err, core.ErrInvalidFEN) {
			t.Errorf("Render(%s) error = %v, want ErrInvalidFEN", format, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Render(ctx, FormatSVG, Request{FEN: board.StartingFEN}); !errors.Is(err, context.Canceled) {
		t.Errorf("Render() with cancelled context error = %v", err)
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()
	mated, _ := board.ParseFEN("R5k1/5ppp/8/8/8/8/8/6K1 b - - 1 1")
	checked, _ := board.ParseFEN("6k1/6pp/8/8/8/8/8/R5K1 b - - 1 1")
	checked2, _ := board.ParseFEN("R5k1/6pp/8/8/8/8/8/6K1 b - - 1 1")
	tests := []struct {
		name string
		o    Outcome
		want string
	}{
		{"start", Outcome{Position: board.StartPosition(), Human: core.ColorWhite}, "Turn: White (you)"},
		{"engine turn in check", Outcome{Position: checked2, Human: core.ColorWhite}, "Turn: Black (engine)\nCheck!"},
		{"quiet", Outcome{Position: checked, Human: core.ColorBlack}, "Turn: Black (you)"},
		{"checkmate", Outcome{Position: mated, Status: core.StatusCheckmate, Winner: core.ColorWhite, Human: core.ColorWhite},
			"Turn: Black\nCheckmate! Winner: White"},
		{"draw", Outcome{Position: board.StartPosition(), Status: core.StatusDrawByRule, Reason: "threefold repetition"},
			"Turn: White\nDraw by threefold repetition"},
		{"resigned", Outcome{Position: board.StartPosition(), Status: core.StatusResigned, Winner: core.ColorBlack},
			"Turn: White\nWhite resigned. Winner: Black"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StatusText(tt.o); got != tt.want {
				t.Errorf("StatusText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvalText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		score, mate int
		side        core.Color
		want        string
	}{
		{35, 0, core.ColorWhite, "+0.35"},
		{35, 0, core.ColorBlack, "-0.35"},
		{-120, 0, core.ColorWhite, "-1.20"},
		{0, 0, core.ColorWhite, "+0.00"},
		{99997, 3, core.ColorWhite, "White mates in 3"},
		{99997, 3, core.ColorBlack, "Black mates in 3"},
		{-99998, -2, core.ColorWhite, "Black mates in 2"},
	}
	for _, tt := range tests {
		if got := EvalText(tt.score, tt.mate, tt.side); got != tt.want {
			t.Errorf("EvalText(%d, %d, %v) = %q, want %q", tt.score, tt.mate, tt.side, got, tt.want)
		}
	}
}
