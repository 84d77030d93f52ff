package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"chessbot/internal/core"
	"chessbot/internal/rules"
	"chessbot/internal/session"
)

const writeQueueSize = 1000

var ErrGameNotArchived = errors.New("game not archived")

// writeOp is a queued transaction, or a flush marker when flushed is set
type writeOp struct {
	fn      func(*sql.Tx) error
	flushed chan struct{}
}

// Store handles SQLite persistence with async writes. Writes are dropped
// once the store is degraded or the queue is full, the bot keeps playing.
type Store struct {
	db           *sql.DB
	path         string
	log          zerolog.Logger
	writeChan    chan writeOp
	healthStatus atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStore opens the database and starts the async writer
func NewStore(path string, devMode bool, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if devMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:        db,
		path:      path,
		log:       log.With().Str("component", "storage").Logger(),
		writeChan: make(chan writeOp, writeQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		enc:       enc,
		dec:       dec,
	}
	s.healthStatus.Store(true)

	s.wg.Add(1)
	go s.writerLoop()

	return s, nil
}

func (s *Store) writerLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			deadline := time.After(2 * time.Second)
			for {
				select {
				case op := <-s.writeChan:
					s.apply(op)
				case <-deadline:
					return
				default:
					return
				}
			}

		case op := <-s.writeChan:
			s.apply(op)
		}
	}
}

func (s *Store) apply(op writeOp) {
	if op.flushed != nil {
		close(op.flushed)
		return
	}
	if s.healthStatus.Load() {
		s.executeWrite(op.fn)
	}
}

func (s *Store) executeWrite(fn func(*sql.Tx) error) {
	tx, err := s.db.Begin()
	if err != nil {
		s.degrade("begin transaction", err)
		return
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		s.degrade("write operation", err)
		return
	}

	if err := tx.Commit(); err != nil {
		s.degrade("commit", err)
	}
}

func (s *Store) degrade(op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("storage degraded")
	s.healthStatus.Store(false)
}

// enqueue hands fn to the writer, dropping it when degraded or full
func (s *Store) enqueue(what string, fn func(*sql.Tx) error) {
	if !s.healthStatus.Load() {
		return
	}
	select {
	case s.writeChan <- writeOp{fn: fn}:
	default:
		s.log.Warn().Str("record", what).Msg("storage write queue full, dropping write")
	}
}

// SaveSession queues an upsert of the session. The session is encoded
// before returning so the caller may keep mutating it.
func (s *Store) SaveSession(g *session.GameSession) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", g.Identity, err)
	}
	rec := SessionRecord{Identity: g.Identity, GameID: g.GameID, Data: data, UpdatedAt: g.UpdatedAt.UTC()}

	s.enqueue("session", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sessions (identity, game_id, data, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(identity) DO UPDATE SET
				game_id = excluded.game_id,
				data = excluded.data,
				updated_at = excluded.updated_at`,
			rec.Identity, rec.GameID, rec.Data, rec.UpdatedAt)
		return err
	})
	return nil
}

// DeleteSession queues removal of the identity's session row
func (s *Store) DeleteSession(identity string) error {
	s.enqueue("session delete", func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM sessions WHERE identity = ?`, identity)
		return err
	})
	return nil
}

// ArchiveGame queues the finished game with its PGN compressed
func (s *Store) ArchiveGame(g *session.GameSession) error {
	result := ResultToken(g.Status, g.Winner)
	tags := []rules.PGNTag{
		{Name: "Event", Value: "Casual game"},
		{Name: "Site", Value: "chessbot"},
		{Name: "Date", Value: g.CreatedAt.UTC().Format("2006.01.02")},
		{Name: "White", Value: playerName(g, core.ColorWhite)},
		{Name: "Black", Value: playerName(g, core.ColorBlack)},
	}
	if g.Terminal != rules.TerminalNone {
		tags = append(tags, rules.PGNTag{Name: "Termination", Value: g.Terminal.Reason()})
	}
	pgn, err := rules.PGN(g.Initial, g.Moves, tags, result)
	if err != nil {
		return fmt.Errorf("build pgn for %s: %w", g.GameID, err)
	}
	blob := s.enc.EncodeAll([]byte(pgn), nil)

	rec := GameRecord{
		GameID:     g.GameID,
		Identity:   g.Identity,
		InitialFEN: g.Initial.FEN(),
		FinalFEN:   g.Position.FEN(),
		Human:      g.Human.String(),
		Level:      g.Level,
		Status:     g.Status.String(),
		Result:     result,
		Plies:      len(g.Moves),
		StartedAt:  g.CreatedAt.UTC(),
		FinishedAt: g.UpdatedAt.UTC(),
	}

	s.enqueue("game", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO games (
			game_id, identity, initial_fen, final_fen, human, level,
			status, result, plies, pgn_zstd, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.GameID, rec.Identity, rec.InitialFEN, rec.FinalFEN, rec.Human, rec.Level,
			rec.Status, rec.Result, rec.Plies, blob, rec.StartedAt, rec.FinishedAt,
		)
		return err
	})
	return nil
}

func playerName(g *session.GameSession, c core.Color) string {
	if g.Human == c {
		return g.Identity
	}
	return fmt.Sprintf("Stockfish (level %d)", g.Level)
}

// ResultToken is the PGN result for a game status
func ResultToken(status core.Status, winner core.Color) string {
	switch status {
	case core.StatusCheckmate, core.StatusResigned:
		switch winner {
		case core.ColorWhite:
			return "1-0"
		case core.ColorBlack:
			return "0-1"
		}
	case core.StatusStalemate, core.StatusDrawByRule:
		return "1/2-1/2"
	}
	return "*"
}

// LoadSessions reads every stored session. Rows that no longer decode, or
// whose payload belongs to another identity or game, are logged and skipped.
func (s *Store) LoadSessions() ([]*session.GameSession, error) {
	rows, err := s.db.Query(`SELECT identity, game_id, data, updated_at FROM sessions ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var sessions []*session.GameSession
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.Identity, &rec.GameID, &rec.Data, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		g := &session.GameSession{}
		if err := json.Unmarshal(rec.Data, g); err != nil {
			s.log.Warn().Err(err).Str("identity", rec.Identity).Msg("skipping corrupt session record")
			continue
		}
		if g.Identity != rec.Identity || g.GameID != rec.GameID {
			s.log.Warn().Str("identity", rec.Identity).Str("game_id", rec.GameID).
				Str("payload_identity", g.Identity).Msg("skipping mismatched session record")
			continue
		}
		sessions = append(sessions, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return sessions, nil
}

// QueryGames lists archived games, "" or "*" matches any value
func (s *Store) QueryGames(gameID, identity string) ([]GameRecord, error) {
	query := `SELECT
		game_id, identity, initial_fen, final_fen, human, level,
		status, result, plies, started_at, finished_at
	FROM games WHERE 1=1`

	var args []any
	if gameID != "" && gameID != "*" {
		query += " AND game_id = ?"
		args = append(args, gameID)
	}
	if identity != "" && identity != "*" {
		query += " AND identity = ?"
		args = append(args, identity)
	}
	query += " ORDER BY finished_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var games []GameRecord
	for rows.Next() {
		var g GameRecord
		err := rows.Scan(
			&g.GameID, &g.Identity, &g.InitialFEN, &g.FinalFEN, &g.Human, &g.Level,
			&g.Status, &g.Result, &g.Plies, &g.StartedAt, &g.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return games, nil
}

// ArchivedPGN returns the decompressed PGN of an archived game
func (s *Store) ArchivedPGN(gameID string) (string, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT pgn_zstd FROM games WHERE game_id = ?`, gameID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrGameNotArchived, gameID)
	}
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	pgn, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return "", fmt.Errorf("decompress pgn %s: %w", gameID, err)
	}
	return string(pgn), nil
}

// Flush blocks until every write queued before the call has been applied
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.writeChan <- writeOp{flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsHealthy returns the current health status
func (s *Store) IsHealthy() bool {
	return s.healthStatus.Load()
}

// Close drains pending writes for up to two seconds, then closes the database
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			s.log.Warn().Msg("storage writer shutdown timeout, some writes may be lost")
		}

		s.enc.Close()
		s.dec.Close()
		err = s.db.Close()
	})
	return err
}

// InitDB creates the database schema
func (s *Store) InitDB() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return tx.Commit()
}

// DeleteDB closes the store and removes the database file
func (s *Store) DeleteDB() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete database file: %w", err)
		}
	}
	return nil
}
