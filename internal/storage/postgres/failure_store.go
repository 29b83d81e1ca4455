// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

const defaultTable = "crawl_failures"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// FailureStoreConfig controls the Postgres connection pool used for failure rows.
type FailureStoreConfig struct {
	DSN             string
	Table           string
	RunID           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// FailureStore writes exhausted requests into Postgres, one row per request.
type FailureStore struct {
	pool  execCloser
	table string
	runID string
}

// NewFailureStore connects to Postgres using cfg.
func NewFailureStore(ctx context.Context, cfg FailureStoreConfig) (*FailureStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("failures.postgres_dsn is required")
	}
	table, err := tableOrDefault(cfg.Table)
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
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &FailureStore{pool: pool, table: table, runID: cfg.RunID}, nil
}

// NewFailureStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewFailureStoreWithPool(pool execCloser, table, runID string) (*FailureStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableOrDefault(table)
	if err != nil {
		return nil, err
	}
	return &FailureStore{pool: pool, table: table, runID: runID}, nil
}

func tableOrDefault(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the failure table when it does not exist yet.
func (s *FailureStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	url_key TEXT NOT NULL,
	stage TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	error TEXT NOT NULL,
	failed_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create failure table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *FailureStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Insert stores one failure row.
func (s *FailureStore) Insert(ctx context.Context, failure crawler.Failure) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("failure store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	url_key,
	stage,
	attempts,
	error,
	failed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		s.runID,
		failure.URL,
		failure.Key,
		failure.Stage.String(),
		failure.Attempts,
		failure.Error,
		failure.FailedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}
