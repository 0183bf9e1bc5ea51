package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresRegistry persists revocation records in PostgreSQL.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed revocation registry.
func NewPostgres(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Revoke upserts a revocation record. On conflict only the status moves to
// revoked; owner, hash, and expiry of the original record are preserved.
// Safe under concurrent calls for the same jti: status only ever transitions
// active -> revoked, so last-writer-wins is harmless.
func (r *PostgresRegistry) Revoke(ctx context.Context, jti string, ownerID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO token_revocations (jti, owner_id, token_hash, status, expires_at, created_at)
		VALUES ($1, $2, $3, 'revoked', $4, $5)
		ON CONFLICT (jti) DO UPDATE SET
			status = 'revoked'
	`
	_, err := r.db.ExecContext(ctx, query, jti, ownerID, tokenHash, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti carries an unexpired revoked record.
func (r *PostgresRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var status string
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT status, expires_at FROM token_revocations WHERE jti = $1`, jti,
	).Scan(&status, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	if time.Now().After(expiresAt) {
		return false, nil
	}
	return status == "revoked", nil
}

// DeleteExpired removes revocation records past their natural expiry.
func (r *PostgresRegistry) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations rows: %w", err)
	}
	return int(rows), nil
}
