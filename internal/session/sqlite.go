// This file implements an SQLite-backed session store.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions in an SQLite database so they survive
// process restarts within the TTL window.
type SQLiteStore struct {
	*store
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed session store. The DSN is a
// file path; the containing directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("session.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("session.SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("session.SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("session.SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("session.SQLiteStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("session.SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("session.SQLiteStore ready", "dsn", cfg.DSN)

	b := &sqliteBackend{db: db}
	return &SQLiteStore{store: newStore(b), db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteBackend struct {
	db *sql.DB
}

func (b *sqliteBackend) load(ctx context.Context, userID string) (*ConversationState, error) {
	var raw string
	err := b.db.QueryRowContext(ctx,
		"SELECT state_json FROM survey_sessions WHERE user_id = ?", userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var state ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &state, nil
}

func (b *sqliteBackend) save(ctx context.Context, state *ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO survey_sessions (user_id, state_json, last_activity) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET state_json = excluded.state_json, last_activity = excluded.last_activity`,
		state.UserID, string(raw), state.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (b *sqliteBackend) delete(ctx context.Context, userID string) error {
	_, err := b.db.ExecContext(ctx,
		"DELETE FROM survey_sessions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
