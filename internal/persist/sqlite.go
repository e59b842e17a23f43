// Package persist implements the durable key-value slot the engine
// saves its dataset to. The SQLite slot is the production backend; the
// memory slot backs tests and throwaway runs.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultKey is the well-known slot name the engine state lives under,
// carried over from the original dataset.
const DefaultKey = "eyePaymentEngine"

type SQLiteSlot struct {
	db  *sql.DB
	key string
}

// NewSQLiteSlot opens (or creates) the database at dbPath and runs the
// schema migrations. An empty key selects DefaultKey.
func NewSQLiteSlot(dbPath, key string) (*SQLiteSlot, error) {
	if key == "" {
		key = DefaultKey
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteSlot{db: db, key: key}, nil
}

func (s *SQLiteSlot) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the stored blob, or nil when nothing has been saved.
func (s *SQLiteSlot) Load(ctx context.Context) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE key = ?`, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %q: %w", s.key, err)
	}
	return value, nil
}

func (s *SQLiteSlot) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save state %q: %w", s.key, err)
	}
	return nil
}

func (s *SQLiteSlot) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM engine_state WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("clear state %q: %w", s.key, err)
	}
	return nil
}
