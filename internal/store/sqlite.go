// Package store provides the guest-tier persistence backends for dreamtalk.
//
// This file implements the SQLite-backed guest-tier store.
package store

import (
	"database/sql"
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

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(userID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM guest_state WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "userID", userID, "key", key)
		return "", false, fmt.Errorf("failed to read guest key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(userID, key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO guest_state (user_id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		userID, key, value)
	if err != nil {
		slog.Error("SQLiteStore Set failed", "error", err, "userID", userID, "key", key)
		return fmt.Errorf("failed to write guest key %s: %w", key, err)
	}
	slog.Debug("SQLiteStore Set succeeded", "userID", userID, "key", key)
	return nil
}

func (s *SQLiteStore) Delete(userID, key string) error {
	_, err := s.db.Exec(`DELETE FROM guest_state WHERE user_id = ? AND key = ?`, userID, key)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "userID", userID, "key", key)
		return fmt.Errorf("failed to delete guest key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ClearUser(userID string) error {
	_, err := s.db.Exec(`DELETE FROM guest_state WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore ClearUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to clear guest state for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore ClearUser succeeded", "userID", userID)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
