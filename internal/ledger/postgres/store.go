// Package postgres keeps the run ledger in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "company_results"

// Config controls the Postgres connection pool used for ledger rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store writes ledger rows into Postgres.
type Store struct {
	pool  pool
	table string
}

var _ ledger.Store = (*Store)(nil)

// New connects to Postgres and makes sure the ledger table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the ledger table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	company_name TEXT NOT NULL,
	ticker TEXT NOT NULL,
	drive_folder_link TEXT NOT NULL,
	has_10k BOOLEAN NOT NULL,
	has_10q BOOLEAN NOT NULL,
	has_deck BOOLEAN NOT NULL,
	has_transcript BOOLEAN NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Completed returns the tickers present in the table.
func (s *Store) Completed(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT DISTINCT ticker FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("query completed tickers: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		if ticker = strings.ToUpper(strings.TrimSpace(ticker)); ticker != "" {
			done[ticker] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickers: %w", err)
	}
	return done, nil
}

// Append inserts one ledger row.
func (s *Store) Append(ctx context.Context, r ledger.Result) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	company_name,
	ticker,
	drive_folder_link,
	has_10k,
	has_10q,
	has_deck,
	has_transcript
) VALUES ($1,$2,$3,$4,$5,$6,$7)`, s.table)
	_, err := s.pool.Exec(ctx, query,
		r.CompanyName,
		r.Ticker,
		r.Link,
		r.Has10K,
		r.Has10Q,
		r.HasDeck,
		r.HasTranscript,
	)
	if err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}

// Reset removes every row.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}
