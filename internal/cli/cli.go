// Package cli is a terminal front end for the coordinator: it reads the same
// commands the chat bot accepts and prints replies with a coloured board.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"chessbot/internal/board"
	"chessbot/internal/coordinator"
	"chessbot/internal/core"
	"chessbot/internal/render"
)

type Action int

const (
	ActNone Action = iota
	ActCommand
	ActTheme
	ActVerbose
	ActHelp
	ActQuit
)

// Input is one parsed line. Command is set for ActCommand, Arg for ActTheme.
type Input struct {
	Action  Action
	Command coordinator.Command
	Arg     string
}

type ColorTheme string

const (
	ThemeOff   ColorTheme = "off"
	ThemeBrown ColorTheme = "brown"
	ThemeGreen ColorTheme = "green"
	ThemeGray  ColorTheme = "gray"
)

type themeColors struct {
	lightBg string
	darkBg  string
	markBg  string
	white   string
	black   string
	errText string
	reset   string
}

var themes = map[ColorTheme]themeColors{
	ThemeOff: {},
	ThemeBrown: {
		lightBg: "\033[48;5;230m", // Beige
		darkBg:  "\033[48;5;94m",  // Brown
		markBg:  "\033[48;5;186m", // Khaki
		white:   "\033[97m",
		black:   "\033[30m",
		errText: "\033[31m",
		reset:   "\033[0m",
	},
	ThemeGreen: {
		lightBg: "\033[48;5;157m",
		darkBg:  "\033[48;5;22m",
		markBg:  "\033[48;5;185m",
		white:   "\033[97m",
		black:   "\033[30m",
		errText: "\033[31m",
		reset:   "\033[0m",
	},
	ThemeGray: {
		lightBg: "\033[48;5;251m",
		darkBg:  "\033[48;5;240m",
		markBg:  "\033[48;5;179m",
		white:   "\033[97m",
		black:   "\033[30m",
		errText: "\033[31m",
		reset:   "\033[0m",
	},
}

// Parse turns a line into an Input for identity. A leading "/" is accepted
// as in the chat; an unknown first word is taken as a move.
func Parse(identity, line string) (Input, error) {
	parts := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(parts) == 0 {
		return Input{Action: ActNone}, nil
	}
	name, args := strings.ToLower(parts[0]), parts[1:]

	command := func(cmd coordinator.Command) (Input, error) {
		return Input{Action: ActCommand, Command: cmd}, nil
	}

	switch name {
	case "new", "start":
		req, err := parseNewGame(args)
		if err != nil {
			return Input{}, err
		}
		return command(coordinator.NewNewGameCommand(identity, req))
	case "move", "m":
		if len(args) != 1 {
			return Input{}, fmt.Errorf("usage: move <e2e4|Nf3>")
		}
		return command(coordinator.NewMoveCommand(identity, core.MoveRequest{Move: args[0]}))
	case "hint", "best":
		return command(coordinator.NewHintCommand(identity))
	case "apply", "applybest":
		return command(coordinator.NewApplyHintCommand(identity))
	case "eval":
		return command(coordinator.NewEvalCommand(identity))
	case "resign":
		return command(coordinator.NewResignCommand(identity))
	case "board", "b":
		return command(coordinator.NewBoardCommand(identity))
	case "fen":
		return command(coordinator.NewFENCommand(identity))
	case "position", "resume":
		if len(args) == 0 {
			return Input{}, fmt.Errorf("usage: position <FEN>")
		}
		return command(coordinator.NewSetPositionCommand(identity, core.PositionRequest{FEN: strings.Join(args, " ")}))
	case "undo":
		req := core.UndoRequest{Count: 1}
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return Input{}, fmt.Errorf("undo count must be a positive number")
			}
			req.Count = n
		}
		return command(coordinator.NewUndoCommand(identity, req))
	case "retry":
		return command(coordinator.NewRetryCommand(identity))
	case "reset":
		return command(coordinator.NewResetCommand(identity))
	case "color", "theme":
		if len(args) != 1 {
			return Input{}, fmt.Errorf("usage: color <off|brown|green|gray>")
		}
		return Input{Action: ActTheme, Arg: args[0]}, nil
	case "verbose":
		return Input{Action: ActVerbose}, nil
	case "help", "?":
		return Input{Action: ActHelp}, nil
	case "quit", "exit", "x":
		return Input{Action: ActQuit}, nil
	default:
		if len(args) > 0 {
			return Input{}, fmt.Errorf("unknown command %q, type help", name)
		}
		return command(coordinator.NewMoveCommand(identity, core.MoveRequest{Move: parts[0]}))
	}
}

// parseNewGame reads "[level] [white|black]" in either order
func parseNewGame(args []string) (core.NewGameRequest, error) {
	var req core.NewGameRequest
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			req.Level = n
			continue
		}
		if _, ok := core.ParseColor(strings.ToLower(a)); ok {
			req.Color = strings.ToLower(a)
			continue
		}
		return req, fmt.Errorf("usage: new [level 1-10] [white|black]")
	}
	return req, nil
}

type CLI struct {
	output  io.Writer
	theme   ColorTheme
	verbose bool
	ascii   render.ASCIIRenderer
}

func New(output io.Writer, theme ColorTheme) *CLI {
	c := &CLI{output: output, theme: ThemeOff}
	c.SetTheme(theme)
	return c
}

func (c *CLI) SetTheme(theme ColorTheme) error {
	if _, ok := themes[theme]; !ok {
		return fmt.Errorf("invalid theme: %s (use: off, brown, green, gray)", theme)
	}
	c.theme = theme
	return nil
}

func (c *CLI) ToggleVerbose() bool {
	c.verbose = !c.verbose
	return c.verbose
}

func (c *CLI) ShowMessage(msg string) {
	fmt.Fprintln(c.output, msg)
}

func (c *CLI) ShowError(err error) {
	t := themes[c.theme]
	fmt.Fprintf(c.output, "%sError: %v%s\n", t.errText, err, t.reset)
}

// Show prints a coordinator reply: board first, then the text
func (c *CLI) Show(resp coordinator.Response) {
	if resp.Board != nil {
		c.DisplayBoard(*resp.Board)
	}
	if !resp.Success {
		t := themes[c.theme]
		fmt.Fprintf(c.output, "%s%s%s\n", t.errText, resp.Text, t.reset)
		if c.verbose && resp.Error != nil {
			c.ShowMessage(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Details))
		}
		return
	}
	c.ShowMessage(resp.Text)
	if snap, ok := resp.Data.(core.SessionResponse); ok && c.verbose {
		c.ShowMessage(fmt.Sprintf("fen: %s\nphase: %s  version: %d  moves: %s",
			snap.FEN, snap.Phase, snap.Version, strings.Join(snap.Moves, " ")))
		if lm := snap.LastMove; lm != nil && lm.Depth > 0 {
			c.ShowMessage(fmt.Sprintf("engine: %s depth=%d score=%d", lm.Move, lm.Depth, lm.Score))
		}
	}
}

// DisplayBoard draws the position with the last move's squares highlighted
func (c *CLI) DisplayBoard(req render.Request) {
	if c.theme == ThemeOff {
		art, err := c.ascii.Render(context.Background(), req)
		if err != nil {
			c.ShowError(err)
			return
		}
		c.ShowMessage("\n" + string(art.Data) + "\n")
		return
	}

	p, err := board.ParseFEN(req.FEN)
	if err != nil {
		c.ShowError(err)
		return
	}
	theme := themes[c.theme]
	marked := func(sq board.Square) bool {
		return req.LastMove != nil && (req.LastMove.From == sq || req.LastMove.To == sq)
	}

	var sb strings.Builder
	sb.WriteString("\n  a b c d e f g h\n")
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d ", rank+1)
		for file := 0; file < 8; file++ {
			sq := board.NewSquare(file, rank)
			bg := theme.darkBg
			if (rank+file)%2 == 1 {
				bg = theme.lightBg
			}
			if marked(sq) {
				bg = theme.markBg
			}
			pc := p.PieceAt(sq)
			if pc == 0 {
				fmt.Fprintf(&sb, "%s  %s", bg, theme.reset)
				continue
			}
			fg := theme.black
			if board.PieceColor(pc) == core.ColorWhite {
				fg = theme.white
			}
			fmt.Fprintf(&sb, "%s%s%c %s", bg, fg, pc, theme.reset)
		}
		fmt.Fprintf(&sb, " %d\n", rank+1)
	}
	sb.WriteString("  a b c d e f g h\n")
	c.ShowMessage(sb.String())
}

func (c *CLI) ShowHelp() {
	help := `Commands:
  new [level] [white|black] - Start a new game against the engine (level 1-10)
  <move> | move <move>      - Play a move (e2e4, e7e8q, Nf3, O-O)
  hint                      - Ask the engine for the best move
  apply                     - Play the last hint
  eval                      - Evaluate the current position
  undo [count]              - Take back moves, default 1
  retry                     - Ask the engine again after a failure
  resign                    - Give up the game
  board | fen               - Show the board or its FEN
  position <FEN>            - Start from a position
  reset                     - Drop the current game
  color <theme>             - Set board color theme (off|brown|green|gray)
  verbose                   - Toggle session details
  quit/exit                 - Exit the program
  help/?                    - Show this help message`

	c.ShowMessage(help)
}

func (c *CLI) ShowWelcome() {
	c.ShowMessage("Chess against the engine. Type 'new' to start, 'help' for commands.")
	c.ShowMessage("Example: 'position 4k3/8/8/8/8/8/8/4K2R w K - 0 1' to start from a puzzle.")
	c.ShowMessage("")
}
