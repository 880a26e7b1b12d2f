package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const savingsSchema = `
CREATE TABLE IF NOT EXISTS savings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id    TEXT    NOT NULL,
	ts            INTEGER NOT NULL,
	model         TEXT    NOT NULL DEFAULT '',
	fragments     INTEGER NOT NULL,
	tokens_before INTEGER NOT NULL,
	tokens_after  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS savings_ts ON savings (ts);
`

// SQLiteStore is a durable Store backed by a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create savings db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open savings db: %w", err)
	}
	// One writer keeps SQLite free of "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, savingsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize savings db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record appends a ledger entry.
func (s *SQLiteStore) Record(ctx context.Context, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO savings (request_id, ts, model, fragments, tokens_before, tokens_after) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.Timestamp.UnixMilli(), r.Model, r.Fragments, r.TokensBefore, r.TokensAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to record savings: %w", err)
	}
	return nil
}

// Totals aggregates every entry.
func (s *SQLiteStore) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(fragments), 0), COALESCE(SUM(tokens_before), 0), COALESCE(SUM(tokens_after), 0) FROM savings`,
	).Scan(&t.Requests, &t.Fragments, &t.TokensBefore, &t.TokensAfter)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to read savings totals: %w", err)
	}
	return t, nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, ts, model, fragments, tokens_before, tokens_after FROM savings ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read savings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		var ts int64
		if err := rows.Scan(&r.RequestID, &ts, &r.Model, &r.Fragments, &r.TokensBefore, &r.TokensAfter); err != nil {
			return nil, fmt.Errorf("failed to scan savings row: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
