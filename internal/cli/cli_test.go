package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chessbot/internal/board"
	"chessbot/internal/coordinator"
	"chessbot/internal/core"
	"chessbot/internal/render"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Input
	}{
		{"", Input{Action: ActNone}},
		{"/new 5 black", Input{Action: ActCommand, Command: coordinator.NewNewGameCommand("me", core.NewGameRequest{Level: 5, Color: "black"})}},
		{"new White", Input{Action: ActCommand, Command: coordinator.NewNewGameCommand("me", core.NewGameRequest{Color: "white"})}},
		{"e2e4", Input{Action: ActCommand, Command: coordinator.NewMoveCommand("me", core.MoveRequest{Move: "e2e4"})}},
		{"/move Nf3", Input{Action: ActCommand, Command: coordinator.NewMoveCommand("me", core.MoveRequest{Move: "Nf3"})}},
		{"hint", Input{Action: ActCommand, Command: coordinator.NewHintCommand("me")}},
		{"/applybest", Input{Action: ActCommand, Command: coordinator.NewApplyHintCommand("me")}},
		{"undo", Input{Action: ActCommand, Command: coordinator.NewUndoCommand("me", core.UndoRequest{Count: 1})}},
		{"undo 3", Input{Action: ActCommand, Command: coordinator.NewUndoCommand("me", core.UndoRequest{Count: 3})}},
		{"position 4k3/8/8/8/8/8/8/4K2R w K - 0 1", Input{Action: ActCommand, Command: coordinator.NewSetPositionCommand("me", core.PositionRequest{FEN: "4k3/8/8/8/8/8/8/4K2R w K - 0 1"})}},
		{"reset", Input{Action: ActCommand, Command: coordinator.NewResetCommand("me")}},
		{"color green", Input{Action: ActTheme, Arg: "green"}},
		{"?", Input{Action: ActHelp}},
		{"exit", Input{Action: ActQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse("me", tt.line)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{"new purple", "move", "undo zero", "undo -1", "position", "color", "castle long now"} {
		if _, err := Parse("me", line); err == nil {
			t.Errorf("Parse(%q) succeeded", line)
		}
	}
}

func TestDisplayBoard(t *testing.T) {
	e2e4 := board.Move{From: board.NewSquare(4, 1), To: board.NewSquare(4, 3)}
	req := render.Request{
		FEN:      "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		LastMove: &e2e4,
	}

	var out bytes.Buffer
	c := New(&out, ThemeOff)
	c.DisplayBoard(req)
	plain := out.String()
	if !strings.Contains(plain, "a b c d e f g h") || strings.Contains(plain, "\033[") {
		t.Errorf("plain board:\n%s", plain)
	}

	out.Reset()
	if err := c.SetTheme(ThemeBrown); err != nil {
		t.Fatal(err)
	}
	c.DisplayBoard(req)
	if !strings.Contains(out.String(), themes[ThemeBrown].markBg) {
		t.Error("last move not highlighted")
	}

	if err := c.SetTheme("neon"); err == nil {
		t.Error("unknown theme accepted")
	}
}

func TestShow(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, ThemeOff)

	c.Show(coordinator.Response{
		Success: false,
		Text:    "Illegal move: e2e5.",
		Error:   &core.ErrorResponse{Code: core.ErrCodeIllegalMove, Details: "illegal move"},
	})
	if got := out.String(); got != "Illegal move: e2e5.\n" {
		t.Errorf("error output %q", got)
	}

	out.Reset()
	c.ToggleVerbose()
	c.Show(coordinator.Response{
		Success: true,
		Text:    "White to move.",
		Data:    core.SessionResponse{FEN: "8/8/8/8/8/8/8/8 w - - 0 1", Phase: "awaiting-human-move", Version: 4},
	})
	if got := out.String(); !strings.Contains(got, "White to move.") || !strings.Contains(got, "version: 4") {
		t.Errorf("verbose output %q", got)
	}

	out.Reset()
	c.ShowError(errors.New("boom"))
	if got := out.String(); got != "Error: boom\n" {
		t.Errorf("ShowError output %q", got)
	}
}
