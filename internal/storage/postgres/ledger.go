// Package postgres provides the Postgres-backed capture ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "matchweek_captures"

// Config controls the Postgres connection pool used for ledger rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger upserts the latest outcome per (season, matchweek) into Postgres.
type Ledger struct {
	pool  execCloser
	table string
}

// NewLedger creates a Postgres-backed ledger using the provided config.
func NewLedger(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool (primarily for testing).
func NewLedgerWithPool(pool execCloser, table string) (*Ledger, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the ledger table when it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	season       TEXT        NOT NULL,
	matchweek    INTEGER     NOT NULL,
	run_id       TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	blob_uri     TEXT        NOT NULL DEFAULT '',
	content_hash TEXT        NOT NULL DEFAULT '',
	match_count  INTEGER     NOT NULL DEFAULT 0,
	error_text   TEXT        NOT NULL DEFAULT '',
	recorded_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (season, matchweek)
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// Record upserts the entry. A later outcome for the same matchweek replaces the earlier one.
func (l *Ledger) Record(ctx context.Context, entry capture.LedgerEntry) error {
	if l == nil || l.pool == nil {
		return errors.New("ledger is not configured")
	}
	if entry.Season == "" || entry.Matchweek < 1 {
		return fmt.Errorf("invalid ledger key %q/%d", entry.Season, entry.Matchweek)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	season,
	matchweek,
	run_id,
	status,
	blob_uri,
	content_hash,
	match_count,
	error_text,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (season, matchweek) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	status = EXCLUDED.status,
	blob_uri = EXCLUDED.blob_uri,
	content_hash = EXCLUDED.content_hash,
	match_count = EXCLUDED.match_count,
	error_text = EXCLUDED.error_text,
	recorded_at = EXCLUDED.recorded_at`, l.table)

	args := []any{
		entry.Season,
		entry.Matchweek,
		entry.RunID,
		string(entry.Status),
		entry.BlobURI,
		entry.ContentHash,
		entry.MatchCount,
		entry.ErrorText,
		entry.RecordedAt,
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}
	return nil
}
