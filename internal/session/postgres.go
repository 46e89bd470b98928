// This file implements a PostgreSQL-backed session store.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions in PostgreSQL for deployments that
// already run one for the survey service.
type PostgresStore struct {
	*store
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed session store.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("session.NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("session.PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("session.PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("session.PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("session.PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("session.PostgresStore ready")

	b := &postgresBackend{db: db}
	return &PostgresStore{store: newStore(b), db: db}, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresBackend struct {
	db *sql.DB
}

func (b *postgresBackend) load(ctx context.Context, userID string) (*ConversationState, error) {
	var raw []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT state_json FROM survey_sessions WHERE user_id = $1", userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var state ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &state, nil
}

func (b *postgresBackend) save(ctx context.Context, state *ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO survey_sessions (user_id, state_json, last_activity) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET state_json = EXCLUDED.state_json, last_activity = EXCLUDED.last_activity`,
		state.UserID, raw, state.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (b *postgresBackend) delete(ctx context.Context, userID string) error {
	_, err := b.db.ExecContext(ctx,
		"DELETE FROM survey_sessions WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
