package storage

import "time"

// SessionRecord is a row in the sessions table
type SessionRecord struct {
	Identity  string    `db:"identity"`
	GameID    string    `db:"game_id"`
	Data      []byte    `db:"data"` // GameSession JSON
	UpdatedAt time.Time `db:"updated_at"`
}

// GameRecord is a row in the games archive
type GameRecord struct {
	GameID     string    `db:"game_id"`
	Identity   string    `db:"identity"`
	InitialFEN string    `db:"initial_fen"`
	FinalFEN   string    `db:"final_fen"`
	Human      string    `db:"human"` // "w" or "b"
	Level      int       `db:"level"`
	Status     string    `db:"status"`
	Result     string    `db:"result"` // PGN result token
	Plies      int       `db:"plies"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	identity TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	data BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS games (
	game_id TEXT PRIMARY KEY,
	identity TEXT NOT NULL,
	initial_fen TEXT NOT NULL,
	final_fen TEXT NOT NULL,
	human TEXT NOT NULL CHECK(human IN ('w', 'b')),
	level INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	result TEXT NOT NULL,
	plies INTEGER NOT NULL DEFAULT 0,
	pgn_zstd BLOB NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_games_identity ON games(identity);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`
