// Package postgres persists price state in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/storage"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store keeps one row per identity.
type Store struct {
	pool   pool
	table  string
	logger *zap.Logger
}

// New connects to Postgres and creates the table when missing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
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
	s, err := NewWithPool(p, cfg.Table, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool; used by tests.
func NewWithPool(p pool, table string, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	table, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, table: table, logger: logger}, nil
}

// Migrate creates the table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		price DOUBLE PRECISION NOT NULL,
		last_check_time TIMESTAMPTZ NOT NULL
	)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return storage.Unreadable(s.table, fmt.Errorf("create table: %w", err))
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Load reads all rows.
func (s *Store) Load(ctx context.Context) (*tracker.State, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT url, title, price, last_check_time FROM %s`, s.table))
	if err != nil {
		return nil, storage.Unreadable(s.table, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	state := tracker.NewState()
	for rows.Next() {
		var e tracker.Entry
		if err := rows.Scan(&e.URL, &e.Title, &e.Price, &e.CheckedAt); err != nil {
			return nil, storage.Unreadable(s.table, fmt.Errorf("scan: %w", err))
		}
		e.CheckedAt = e.CheckedAt.UTC()
		state.Upsert(e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unreadable(s.table, err)
	}
	return state, nil
}

// Save replaces the table contents with state inside one transaction.
func (s *Store) Save(ctx context.Context, state *tracker.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Unwritable(s.table, fmt.Errorf("begin: %w", err))
	}
	if err := s.replace(ctx, tx, state); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return storage.Unwritable(s.table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Unwritable(s.table, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) replace(ctx context.Context, tx pgx.Tx, state *tracker.State) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}
	insert := fmt.Sprintf(
		`INSERT INTO %s (id, url, title, price, last_check_time) VALUES ($1, $2, $3, $4, $5)`, s.table)
	for _, e := range state.Entries() {
		if _, err := tx.Exec(ctx, insert, tracker.Key(e.URL), e.URL, e.Title, e.Price, e.CheckedAt.UTC()); err != nil {
			return fmt.Errorf("insert %s: %w", e.URL, err)
		}
	}
	return nil
}
