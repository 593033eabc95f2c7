// Package sqlite persists price state in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/pricewatch/internal/storage"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Store keeps one row per identity.
type Store struct {
	db     *sql.DB
	dsn    string
	table  string
	logger *zap.Logger
}

// Open connects to the database at dsn and ensures the table exists.
func Open(ctx context.Context, dsn, table string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	table, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db, dsn: dsn, table: table, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Unreadable(dsn, err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL,
		last_check_time TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads every row into a State.
func (s *Store) Load(ctx context.Context) (*tracker.State, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT url, title, price, last_check_time FROM %s`, s.table))
	if err != nil {
		return nil, storage.Unreadable(s.dsn, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	state := tracker.NewState()
	for rows.Next() {
		var rec storage.Record
		if err := rows.Scan(&rec.URL, &rec.Title, &rec.Price, &rec.LastCheckTime); err != nil {
			return nil, storage.Unreadable(s.dsn, fmt.Errorf("scan: %w", err))
		}
		entry, err := rec.Entry()
		if err != nil {
			return nil, storage.Unreadable(s.dsn, err)
		}
		state.Upsert(entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unreadable(s.dsn, err)
	}
	return state, nil
}

// Save replaces the table contents with state in one transaction.
func (s *Store) Save(ctx context.Context, state *tracker.State) error {
	started := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unwritable(s.dsn, fmt.Errorf("begin: %w", err))
	}
	if err := s.replace(ctx, tx, state); err != nil {
		_ = tx.Rollback()
		return storage.Unwritable(s.dsn, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unwritable(s.dsn, fmt.Errorf("commit: %w", err))
	}
	s.logger.Debug("state saved", zap.Int("rows", state.Len()), zap.Duration("dur", time.Since(started)))
	return nil
}

func (s *Store) replace(ctx context.Context, tx *sql.Tx, state *tracker.State) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, url, title, price, last_check_time) VALUES (?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range state.Entries() {
		rec := storage.FromEntry(e)
		if _, err := stmt.ExecContext(ctx, tracker.Key(e.URL), rec.URL, rec.Title, rec.Price, rec.LastCheckTime); err != nil {
			return fmt.Errorf("insert %s: %w", e.URL, err)
		}
	}
	return nil
}
