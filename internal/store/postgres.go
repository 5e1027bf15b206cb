// Package store provides the guest-tier persistence backends for dreamtalk.
//
// This file implements the PostgreSQL-backed guest-tier store for hosted
// deployments where "device-local" state lives with the front-end process.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(userID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM guest_state WHERE user_id = $1 AND key = $2`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "userID", userID, "key", key)
		return "", false, fmt.Errorf("failed to read guest key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(userID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO guest_state (user_id, key, value, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		userID, key, value)
	if err != nil {
		slog.Error("PostgresStore Set failed", "error", err, "userID", userID, "key", key)
		return fmt.Errorf("failed to write guest key %s: %w", key, err)
	}
	slog.Debug("PostgresStore Set succeeded", "userID", userID, "key", key)
	return nil
}

func (s *PostgresStore) Delete(userID, key string) error {
	_, err := s.db.Exec(`DELETE FROM guest_state WHERE user_id = $1 AND key = $2`, userID, key)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "userID", userID, "key", key)
		return fmt.Errorf("failed to delete guest key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) ClearUser(userID string) error {
	_, err := s.db.Exec(`DELETE FROM guest_state WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore ClearUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to clear guest state for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore ClearUser succeeded", "userID", userID)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
