// Package database manages the PostgreSQL pool every eduid store shares.
// The pool is optional: without a DATABASE_URL the server runs entirely on
// the in-memory stores, so an absent pool is a supported configuration,
// not an error.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const connectTimeout = 5 * time.Second

// Config holds pool sizing and the connection URL.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns pool sizing suited to the small per-request query
// counts of the auth and role stores.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Pool wraps *sql.DB so the readiness probe and the cleanup worker share one
// nil-safe handle.
type Pool struct {
	db *sql.DB
}

// New opens a pool over the pgx stdlib driver and verifies connectivity
// before any store touches it. An empty URL returns a nil pool, which the
// caller treats as "run on the in-memory stores".
func New(cfg Config) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB exposes the underlying handle the store constructors take.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database. The readiness probe registers this as its
// database check.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// Close releases the pool. Safe on a nil pool so memory-mode shutdown needs
// no special casing.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
