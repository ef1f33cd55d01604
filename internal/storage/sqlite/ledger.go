// Package sqlite provides a file-backed capture ledger for single-host runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

const schema = `
CREATE TABLE IF NOT EXISTS matchweek_captures (
	season       TEXT    NOT NULL,
	matchweek    INTEGER NOT NULL,
	run_id       TEXT    NOT NULL,
	status       TEXT    NOT NULL,
	blob_uri     TEXT    NOT NULL DEFAULT '',
	content_hash TEXT    NOT NULL DEFAULT '',
	match_count  INTEGER NOT NULL DEFAULT 0,
	error_text   TEXT    NOT NULL DEFAULT '',
	recorded_at  TEXT    NOT NULL,
	PRIMARY KEY (season, matchweek)
)`

// Ledger stores the latest outcome per matchweek in a SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger.path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite wants a single writer; this also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record upserts the entry keyed by (season, matchweek).
func (l *Ledger) Record(ctx context.Context, entry capture.LedgerEntry) error {
	if entry.Season == "" || entry.Matchweek < 1 {
		return fmt.Errorf("invalid ledger key %q/%d", entry.Season, entry.Matchweek)
	}
	const query = `
INSERT INTO matchweek_captures (
	season, matchweek, run_id, status, blob_uri, content_hash, match_count, error_text, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (season, matchweek) DO UPDATE SET
	run_id = excluded.run_id,
	status = excluded.status,
	blob_uri = excluded.blob_uri,
	content_hash = excluded.content_hash,
	match_count = excluded.match_count,
	error_text = excluded.error_text,
	recorded_at = excluded.recorded_at`

	_, err := l.db.ExecContext(ctx, query,
		entry.Season,
		entry.Matchweek,
		entry.RunID,
		string(entry.Status),
		entry.BlobURI,
		entry.ContentHash,
		entry.MatchCount,
		entry.ErrorText,
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}
	return nil
}

// Get returns the latest recorded outcome for a matchweek.
func (l *Ledger) Get(ctx context.Context, season string, matchweek int) (capture.LedgerEntry, error) {
	const query = `
SELECT run_id, status, blob_uri, content_hash, match_count, error_text, recorded_at
FROM matchweek_captures
WHERE season = ? AND matchweek = ?`

	entry := capture.LedgerEntry{Season: season, Matchweek: matchweek}
	var (
		status     string
		recordedAt string
	)
	err := l.db.QueryRowContext(ctx, query, season, matchweek).Scan(
		&entry.RunID,
		&status,
		&entry.BlobURI,
		&entry.ContentHash,
		&entry.MatchCount,
		&entry.ErrorText,
		&recordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return capture.LedgerEntry{}, fmt.Errorf("%s/mw%02d: %w", season, matchweek, capture.ErrEntryNotFound)
	}
	if err != nil {
		return capture.LedgerEntry{}, fmt.Errorf("query ledger entry: %w", err)
	}
	entry.Status = capture.Status(status)
	entry.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return capture.LedgerEntry{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return entry, nil
}
