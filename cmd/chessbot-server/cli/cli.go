// Package cli holds the administrative subcommands of the server binary
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lixenwraith/auth"
	"golang.org/x/term"

	"chessbot/internal/logx"
	"chessbot/internal/storage"
	httptransport "chessbot/internal/transport/http"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// Run dispatches "db" subcommands: init, delete, query, pgn
func Run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: init, delete, query, pgn")
	}

	switch args[0] {
	case "init":
		return runInit(args[1:], out)
	case "delete":
		return runDelete(args[1:], out)
	case "query":
		return runQuery(args[1:], out)
	case "pgn":
		return runPGN(args[1:], out)
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func openStore(fs *flag.FlagSet, args []string) (*storage.Store, error) {
	path := fs.String("path", "", "Database file path (required)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		return nil, fmt.Errorf("database path required")
	}
	store, err := storage.NewStore(*path, false, logx.Nop())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Fprintf(out, "Database initialized at: %s\n", fs.Lookup("path").Value)
	return nil
}

func runDelete(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}
	fmt.Fprintf(out, "Database deleted: %s\n", fs.Lookup("path").Value)
	return nil
}

func runQuery(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	gameID := fs.String("gameId", "", "Game ID to filter (optional, * for all)")
	identity := fs.String("identity", "", "Chat identity to filter (optional, * for all)")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	games, err := store.QueryGames(*gameID, *identity)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(games) == 0 {
		fmt.Fprintln(out, "No games found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Game ID\tIdentity\tHuman\tLevel\tStatus\tResult\tPlies\tFinished")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, g := range games {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			shortID(g.GameID),
			g.Identity,
			g.Human,
			g.Level,
			g.Status,
			g.Result,
			g.Plies,
			g.FinishedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nFound %d game(s)\n", len(games))
	return nil
}

func runPGN(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pgn", flag.ContinueOnError)
	gameID := fs.String("gameId", "", "Game ID (required)")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	if *gameID == "" {
		return fmt.Errorf("game ID required")
	}
	pgn, err := store.ArchivedPGN(*gameID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, pgn)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// Token mints a bearer token for the HTTP gateway. The secret comes from
// -secret, JWT_SECRET or an interactive prompt, in that order.
func Token(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "Chat identity the token acts for")
	all := fs.Bool("all", false, "Token acts for every identity (chat front end)")
	ttl := fs.Duration("ttl", defaultTokenTTL, "Token lifetime")
	secret := fs.String("secret", "", "Signing secret (default $JWT_SECRET)")
	interactive := fs.Bool("interactive", false, "Prompt for the signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" && !*all {
		return errors.New("either -subject or -all is required")
	}
	if *subject == "" {
		*subject = "gateway"
	}
	if *ttl <= 0 {
		return fmt.Errorf("ttl %s must be positive", *ttl)
	}

	key := *secret
	switch {
	case *interactive:
		if key != "" {
			return errors.New("cannot use -interactive with -secret")
		}
		fmt.Fprint(out, "Enter signing secret: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		key = string(b)
	case key == "":
		key = os.Getenv("JWT_SECRET")
	}
	if len(key) < 32 {
		return errors.New("signing secret must be at least 32 characters")
	}

	claims := map[string]any{}
	if *all {
		claims["scope"] = httptransport.ScopeAll
	}
	token, err := auth.GenerateHS256Token([]byte(key), *subject, claims, *ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
