package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"query-assistant/internal/domain"
)

// SQLiteStore keeps the turn log in a local SQLite file. Useful for single-node
// deployments and development.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// history table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("repository: create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: init sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+CollectionName+` (
			id          TEXT PRIMARY KEY,
			user        TEXT NOT NULL,
			ai          TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_created ON `+CollectionName+`(created_at);
	`)
	return err
}

// Append inserts one turn.
func (s *SQLiteStore) Append(ctx context.Context, turn domain.Turn) error {
	if strings.TrimSpace(turn.ID) == "" {
		return errors.New("repository: Append: turn id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+CollectionName+` (id, user, ai, created_at) VALUES (?, ?, ?, ?)`,
		turn.ID, turn.Input, turn.Output, turn.Timestamp.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, ai, created_at FROM `+CollectionName+`
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: Recent query: %w", err)
	}
	defer rows.Close()

	turns := make([]domain.Turn, 0, limit)
	for rows.Next() {
		var (
			t  domain.Turn
			ns int64
		)
		if err := rows.Scan(&t.ID, &t.Input, &t.Output, &ns); err != nil {
			return nil, fmt.Errorf("repository: Recent scan: %w", err)
		}
		t.Timestamp = time.Unix(0, ns).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: Recent rows: %w", err)
	}
	return turns, nil
}

// Ping checks the database handle is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("repository: sqlite ping: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
