// Package config loads server settings from defaults, a .env file, the
// environment and command-line flags, later sources overriding earlier ones.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chessbot/internal/engine"
	"chessbot/internal/session"
)

const minSecretLen = 32

type Config struct {
	API     APIConfig
	Engine  EngineConfig
	Session SessionConfig
	Storage StorageConfig
	Log     LogConfig

	DefaultLevel int
	Strength     engine.StrengthTable

	PIDPath string
	PIDLock bool
}

type APIConfig struct {
	Host      string
	Port      int
	DevMode   bool
	JWTSecret string // empty disables bearer authentication
}

type EngineConfig struct {
	Path       string
	PoolSize   int
	QueueLimit int
	Grace      time.Duration
}

type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type StorageConfig struct {
	Path string // empty disables persistence
}

type LogConfig struct {
	Level string
}

// Default returns the settings used when nothing else is configured
func Default() Config {
	return Config{
		API: APIConfig{
			Host: "localhost",
			Port: 8080,
		},
		Engine: EngineConfig{
			Path:       "stockfish",
			PoolSize:   2,
			QueueLimit: 16,
			Grace:      2 * time.Second,
		},
		Session: SessionConfig{
			IdleTTL:       session.DefaultIdleTTL,
			SweepInterval: session.DefaultSweepInterval,
		},
		Log:          LogConfig{Level: "info"},
		DefaultLevel: 3,
		Strength:     engine.DefaultStrength,
	}
}

// Addr is the listen address of the API server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// Load builds the configuration for the server command line args. The .env
// file named by -env-file (default ".env") is optional; variables already
// set in the environment win over it.
func Load(args []string, usage io.Writer) (*Config, error) {
	cfg := Default()

	dotenv, err := readEnvFile(envFileArg(args))
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("chessbot-server", flag.ContinueOnError)
	if usage != nil {
		fs.SetOutput(usage)
	}
	fs.String("env-file", ".env", "Path to an optional .env file")
	fs.StringVar(&cfg.API.Host, "api-host", cfg.API.Host, "API server host")
	fs.IntVar(&cfg.API.Port, "api-port", cfg.API.Port, "API server port")
	fs.BoolVar(&cfg.API.DevMode, "dev", cfg.API.DevMode, "Development mode (relaxed rate limits, WAL journal)")
	fs.StringVar(&cfg.Storage.Path, "storage-path", cfg.Storage.Path, "Path to SQLite database file (disables persistence if empty)")
	fs.StringVar(&cfg.PIDPath, "pid", "", "Optional path to write PID file")
	fs.BoolVar(&cfg.PIDLock, "pid-lock", false, "Lock PID file to allow only one instance (requires -pid)")
	fs.StringVar(&cfg.Engine.Path, "stockfish", cfg.Engine.Path, "Engine binary speaking UCI")
	fs.IntVar(&cfg.Engine.PoolSize, "engine-pool", cfg.Engine.PoolSize, "Number of engine processes")
	fs.IntVar(&cfg.Engine.QueueLimit, "engine-queue", cfg.Engine.QueueLimit, "Requests allowed to wait for an engine")
	fs.DurationVar(&cfg.Engine.Grace, "engine-grace", cfg.Engine.Grace, "Extra time over movetime before an engine reply counts as lost")
	fs.DurationVar(&cfg.Session.IdleTTL, "idle-ttl", cfg.Session.IdleTTL, "Remove sessions idle for this long")
	fs.IntVar(&cfg.DefaultLevel, "default-level", cfg.DefaultLevel, "Engine level for new games, 1-10")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envFileArg finds -env-file before the full flag parse, the file feeds the flag defaults
func envFileArg(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "env-file" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("STOCKFISH_PATH", &c.Engine.Path)
	num("ENGINE_POOL_SIZE", &c.Engine.PoolSize)
	num("ENGINE_QUEUE_LIMIT", &c.Engine.QueueLimit)
	if v, ok := lookup("ENGINE_GRACE_MS"); ok {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("ENGINE_GRACE_MS: %w", err))
		} else {
			c.Engine.Grace = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := lookup("SESSION_IDLE_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_IDLE_TTL: %w", err))
		} else {
			c.Session.IdleTTL = d
		}
	}
	str("STORAGE_PATH", &c.Storage.Path)
	str("API_HOST", &c.API.Host)
	num("API_PORT", &c.API.Port)
	str("JWT_SECRET", &c.API.JWTSecret)
	str("LOG_LEVEL", &c.Log.Level)
	num("DEFAULT_LEVEL", &c.DefaultLevel)
	if v, ok := lookup("DEV_MODE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("DEV_MODE: %w", err))
		} else {
			c.API.DevMode = b
		}
	}
	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Path == "" {
		errs = append(errs, errors.New("engine path is empty"))
	}
	if c.Engine.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("engine pool size %d, need at least 1", c.Engine.PoolSize))
	}
	if c.Engine.QueueLimit < 0 {
		errs = append(errs, fmt.Errorf("engine queue limit %d is negative", c.Engine.QueueLimit))
	}
	if c.Engine.Grace <= 0 {
		errs = append(errs, fmt.Errorf("engine grace %s must be positive", c.Engine.Grace))
	}
	if c.Session.IdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("idle ttl %s must be positive", c.Session.IdleTTL))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval %s must be positive", c.Session.SweepInterval))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api port %d out of range", c.API.Port))
	}
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("jwt secret must be at least %d characters", minSecretLen))
	}
	if err := c.Strength.Validate(); err != nil {
		errs = append(errs, err)
	} else if _, err := c.Strength.Budget(c.DefaultLevel); err != nil {
		errs = append(errs, fmt.Errorf("default level: %w", err))
	}
	if c.PIDLock && c.PIDPath == "" {
		errs = append(errs, errors.New("-pid-lock requires -pid"))
	}
	return errors.Join(errs...)
}
