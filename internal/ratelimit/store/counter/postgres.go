package counter

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists rate limit counters in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed counter store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Incr performs the insert-or-increment as a single upsert. The CASE keeps the
// count when the stored window matches and restarts it otherwise, so
// concurrent increments for the same key never lose updates.
func (s *PostgresStore) Incr(ctx context.Context, key, kind string, windowStart, expiresAt time.Time) (int, error) {
	query := `
		INSERT INTO rate_limit_counters (key, kind, count, window_start, expires_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (key, kind) DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_start = EXCLUDED.window_start
				THEN rate_limit_counters.count + 1
				ELSE 1
			END,
			window_start = EXCLUDED.window_start,
			expires_at = EXCLUDED.expires_at
		RETURNING count
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, key, kind, windowStart, expiresAt).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return count, nil
}

// DeleteExpired removes counters whose retention expiry has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit counters: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit counters rows: %w", err)
	}
	return int(rows), nil
}
