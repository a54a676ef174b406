// Package sqlite provides SQLite-based persistent storage for the Iris
// coordinator. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations. It implements
// domain.Store.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/iris.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "iris.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id               TEXT PRIMARY KEY,
			key_hash         TEXT NOT NULL UNIQUE,
			key_prefix       TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'active',
			created_at       INTEGER NOT NULL,
			last_activity_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_key_hash ON accounts(key_hash)`,

		`CREATE TABLE IF NOT EXISTS nodes (
			id                TEXT PRIMARY KEY,
			account_id        TEXT,
			public_key        TEXT NOT NULL,
			model_name        TEXT NOT NULL,
			max_context       INTEGER NOT NULL DEFAULT 0,
			vram_gb           REAL NOT NULL DEFAULT 0,
			gpu_name          TEXT NOT NULL DEFAULT '',
			model_params_b    REAL NOT NULL DEFAULT 0,
			quantization      TEXT NOT NULL DEFAULT '',
			tokens_per_second REAL NOT NULL DEFAULT 0,
			tier              TEXT NOT NULL,
			supports_vision   BOOLEAN DEFAULT 0,
			reputation        REAL NOT NULL DEFAULT 100.0,
			tasks_completed   INTEGER NOT NULL DEFAULT 0,
			created_at        INTEGER NOT NULL,
			last_seen_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_account ON nodes(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_reputation ON nodes(reputation)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id              TEXT PRIMARY KEY,
			principal_id    TEXT NOT NULL,
			mode            TEXT NOT NULL,
			difficulty      TEXT NOT NULL,
			original_prompt TEXT NOT NULL,
			final_response  TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			has_files       BOOLEAN DEFAULT 0,
			created_at      INTEGER NOT NULL,
			completed_at    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_principal ON tasks(principal_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,

		`CREATE TABLE IF NOT EXISTS subtasks (
			id                TEXT PRIMARY KEY,
			task_id           TEXT NOT NULL,
			node_id           TEXT,
			prompt            TEXT NOT NULL,
			response          TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			assigned_at       INTEGER,
			completed_at      INTEGER,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (task_id) REFERENCES tasks(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id)`,

		`CREATE TABLE IF NOT EXISTS reputation_events (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			delta   REAL NOT NULL,
			reason  TEXT NOT NULL,
			at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_repevents_node ON reputation_events(node_id)`,

		`CREATE TABLE IF NOT EXISTS enrollment_tokens (
			id           TEXT PRIMARY KEY,
			token_hash   TEXT NOT NULL UNIQUE,
			label        TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL,
			expires_at   INTEGER,
			used_at      INTEGER,
			used_by_node TEXT,
			revoked      BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_hash ON enrollment_tokens(token_hash)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
