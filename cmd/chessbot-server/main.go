// Command chessbot-server runs the chess session coordinator behind an HTTP
// API for the Telegram front end. "db" and "token" are admin subcommands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lixenwraith/auth"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chessbot/cmd/chessbot-server/cli"
	"chessbot/internal/config"
	"chessbot/internal/coordinator"
	"chessbot/internal/engine"
	"chessbot/internal/logx"
	"chessbot/internal/render"
	"chessbot/internal/session"
	"chessbot/internal/storage"
	httptransport "chessbot/internal/transport/http"
)

const gracefulShutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "db":
			if err := cli.Run(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "db: %v\n", err)
				os.Exit(1)
			}
			return
		case "token":
			if err := cli.Token(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "token: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logx.NewLogger(os.Stderr, cfg.Log.Level)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server exited")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if cfg.PIDPath != "" {
		pid, err := writePIDFile(cfg.PIDPath, cfg.PIDLock)
		if err != nil {
			return fmt.Errorf("pid file: %w", err)
		}
		defer pid.Close()
		log.Info().Str("path", cfg.PIDPath).Bool("lock", cfg.PIDLock).Msg("PID file created")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage (optional)
	var db *storage.Store
	if cfg.Storage.Path != "" {
		var err error
		db, err = storage.NewStore(cfg.Storage.Path, cfg.API.DevMode, log)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("storage did not close cleanly")
			}
		}()
		if err := db.InitDB(); err != nil {
			return fmt.Errorf("storage schema: %w", err)
		}
		log.Info().Str("path", cfg.Storage.Path).Msg("persistent storage enabled")
	} else {
		log.Info().Msg("persistent storage disabled (use -storage-path to enable)")
	}

	// 2. Session store, restored from storage
	var coord *coordinator.Coordinator
	storeOpts := []session.Option{
		session.WithIdleTTL(cfg.Session.IdleTTL),
		session.WithEvictHook(func(g *session.GameSession, reason string) {
			coord.SessionEvicted(g, reason)
		}),
	}
	if db != nil {
		storeOpts = append(storeOpts, session.WithPersister(db))
	}
	sessions := session.New(log, storeOpts...)
	if db != nil {
		saved, err := db.LoadSessions()
		if err != nil {
			return fmt.Errorf("load sessions: %w", err)
		}
		log.Info().Int("restored", sessions.Load(saved)).Msg("sessions restored")
	}

	// 3. Engine pool
	pool, err := engine.NewPool(ctx, engine.PoolConfig{
		Size:       cfg.Engine.PoolSize,
		QueueLimit: cfg.Engine.QueueLimit,
		Engine: engine.Config{
			Path:  cfg.Engine.Path,
			Grace: cfg.Engine.Grace,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("engine pool: %w", err)
	}
	defer func() {
		if err := pool.Close(gracefulShutdownTimeout); err != nil {
			log.Warn().Err(err).Msg("engine pool did not close cleanly")
		}
	}()

	// 4. Coordinator
	var coordOpts []coordinator.Option
	if db != nil {
		coordOpts = append(coordOpts, coordinator.WithArchiver(db))
	}
	coord, err = coordinator.New(sessions, pool, coordinator.Config{
		Strength:     cfg.Strength,
		DefaultLevel: cfg.DefaultLevel,
	}, log, coordOpts...)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	// 5. HTTP gateway
	httpCfg := httptransport.Config{
		DevMode:  cfg.API.DevMode,
		Renderer: render.NewGateway(),
		Engine:   pool,
		Sessions: sessions.Len,
	}
	if db != nil {
		httpCfg.Storage = db
	}
	if cfg.API.JWTSecret != "" {
		secret := []byte(cfg.API.JWTSecret)
		httpCfg.ValidateToken = func(token string) (string, map[string]any, error) {
			return auth.ValidateHS256Token(secret, token)
		}
	} else {
		log.Warn().Msg("JWT_SECRET not set, API authentication disabled")
	}
	app := httptransport.NewFiberApp(coord, httpCfg, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", "http://"+cfg.Addr()).
			Bool("auth", httpCfg.ValidateToken != nil).
			Bool("dev", cfg.API.DevMode).
			Int("engines", cfg.Engine.PoolSize).
			Int("default_level", cfg.DefaultLevel).
			Msg("chessbot API server starting")
		if err := app.Listen(cfg.Addr()); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sessions.RunSweeper(gctx, cfg.Session.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		// Long-polling clients and engine turns go first so the server can drain
		var errs []error
		if err := coord.Shutdown(gracefulShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("coordinator: %w", err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server forced to shut down: %w", err))
		}
		if db != nil {
			if err := db.Flush(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("storage flush: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
