// Command chessbot-cli plays against the engine from a terminal. By default
// it runs the coordinator in-process; with -server it drives a running
// chessbot-server over its HTTP API instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"chessbot/internal/cli"
	"chessbot/internal/client"
	"chessbot/internal/coordinator"
	"chessbot/internal/engine"
	"chessbot/internal/logx"
	"chessbot/internal/session"
)

const commandTimeout = 30 * time.Second

// executor runs commands either in-process or against a remote server
type executor interface {
	Execute(ctx context.Context, cmd coordinator.Command) coordinator.Response
}

type options struct {
	stockfish string
	level     int
	identity  string
	theme     string
	logLevel  string
	server    string
	token     string
}

func main() {
	var opts options
	flag.StringVar(&opts.stockfish, "stockfish", "stockfish", "Engine binary speaking UCI")
	flag.IntVar(&opts.level, "level", 3, "Default engine level, 1-10")
	flag.StringVar(&opts.identity, "identity", "local", "Session identity")
	flag.StringVar(&opts.theme, "theme", "", "Board theme: off, brown, green, gray (default brown on a terminal)")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	flag.StringVar(&opts.server, "server", "", "chessbot-server URL, e.g. http://localhost:8080 (default: in-process engine)")
	flag.StringVar(&opts.token, "token", os.Getenv("CHESSBOT_TOKEN"), "Bearer token for -server")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "chessbot-cli: %v\n", err)
		os.Exit(1)
	}
}

// local starts an engine pool and coordinator in this process
func local(ctx context.Context, opts options, log zerolog.Logger) (executor, func(), error) {
	pool, err := engine.NewPool(ctx, engine.PoolConfig{
		Size:       1,
		QueueLimit: 2,
		Engine:     engine.Config{Path: opts.stockfish},
	}, log)
	if err != nil {
		return nil, nil, err
	}

	coord, err := coordinator.New(session.New(log), pool, coordinator.Config{DefaultLevel: opts.level}, log)
	if err != nil {
		pool.Close(time.Second)
		return nil, nil, err
	}
	return coord, func() {
		coord.Shutdown(time.Second)
		pool.Close(2 * time.Second)
	}, nil
}

func run(opts options) error {
	log := logx.NewLogger(os.Stderr, opts.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exec executor
	if opts.server != "" {
		exec = client.New(opts.server, opts.token, log)
	} else {
		coord, closeFn, err := local(ctx, opts, log)
		if err != nil {
			return err
		}
		defer closeFn()
		exec = coord
	}
	identity, theme := opts.identity, opts.theme

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if theme == "" {
		theme = string(cli.ThemeOff)
		if interactive {
			theme = string(cli.ThemeBrown)
		}
	}
	ui := cli.New(os.Stdout, cli.ColorTheme(theme))

	prompt := "chess > "
	if interactive {
		prompt = "\033[33mchess > \033[0m"
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	ui.ShowWelcome()
	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return err
		}

		in, err := cli.Parse(identity, line)
		if err != nil {
			ui.ShowError(err)
			continue
		}
		switch in.Action {
		case cli.ActNone:
		case cli.ActQuit:
			ui.ShowMessage("Goodbye!")
			return nil
		case cli.ActHelp:
			ui.ShowHelp()
		case cli.ActVerbose:
			if ui.ToggleVerbose() {
				ui.ShowMessage("Verbose on")
			} else {
				ui.ShowMessage("Verbose off")
			}
		case cli.ActTheme:
			if err := ui.SetTheme(cli.ColorTheme(strings.ToLower(in.Arg))); err != nil {
				ui.ShowError(err)
			}
		case cli.ActCommand:
			cmdCtx, cmdCancel := context.WithTimeout(ctx, commandTimeout)
			ui.Show(exec.Execute(cmdCtx, in.Command))
			cmdCancel()
		}
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chessbot_history"
	}
	return filepath.Join(home, ".chessbot_history")
}
