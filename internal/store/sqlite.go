package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore implements DataStore on sqlx. The same schema and queries run on
// SQLite and PostgreSQL; placeholders are rebound per driver.
type SQLStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to the store and creates the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && dir != "" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := NewSQLStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLStore wraps an existing connection. The schema is not touched.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, timeout: 5 * time.Second}
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS guardrails (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		qty INTEGER NOT NULL,
		entry_debit DOUBLE PRECISION NOT NULL,
		state TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		proposal_id TEXT,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		qty INTEGER NOT NULL,
		max_loss DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		is_paper BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS proposals (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		score INTEGER NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		qty INTEGER NOT NULL,
		max_loss DOUBLE PRECISION NOT NULL,
		dte INTEGER NOT NULL,
		legs TEXT NOT NULL,
		rationale TEXT,
		dedupe_key TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signal_proposals (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		symbol TEXT NOT NULL,
		bias TEXT NOT NULL,
		dte INTEGER NOT NULL,
		long_leg TEXT NOT NULL,
		short_leg TEXT NOT NULL,
		width DOUBLE PRECISION NOT NULL,
		debit DOUBLE PRECISION NOT NULL,
		max_profit DOUBLE PRECISION NOT NULL,
		rr DOUBLE PRECISION NOT NULL,
		filters TEXT NOT NULL,
		status TEXT NOT NULL,
		strategy_version TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_state ON positions(state)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_dedupe ON proposals(dedupe_key, created_at)`,
}

// initSchema creates all required tables and indexes.
func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
