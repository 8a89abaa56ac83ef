// Package repository persists documents and run snapshots. Storage is a
// single sqlite database; re-running a document never mutates an earlier
// snapshot, it appends a new one.
package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	DSN         string // e.g. "file:statements.db" or ":memory:"
	DialTimeout time.Duration
	BusyTimeout time.Duration
}

// Open connects, applies pragmas and runs migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	logger.Info("opening store", "dsn", cfg.DSN)

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return nil, err
	}
	// sqlite serializes writers; a second connection only buys lock contention
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to open store", "error", err)
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = "+strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10)); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		logger.Error("migration failed", "error", err)
		return nil, err
	}
	logger.Info("store ready")
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	hash       TEXT NOT NULL UNIQUE,
	filename   TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	state       TEXT NOT NULL,
	result_json TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_document ON snapshots(document_id, created_at);
`
	_, err := db.ExecContext(ctx, ddl)
	return err
}
