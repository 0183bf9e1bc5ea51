package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"

	"github.com/google/uuid"
)

// PostgresStore persists verification codes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed verification code store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, code *models.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (id, email, code, purpose, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		code.ID,
		code.Email,
		code.Code,
		string(code.Purpose),
		code.Used,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create verification code: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, email string, purpose models.CodePurpose, now time.Time) (*models.VerificationCode, error) {
	query := `
		SELECT id, email, code, purpose, used, expires_at, created_at
		FROM verification_codes
		WHERE email = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	var code models.VerificationCode
	var purposeStr string
	err := s.db.QueryRowContext(ctx, query, email, string(purpose), now).Scan(
		&code.ID,
		&code.Email,
		&code.Code,
		&purposeStr,
		&code.Used,
		&code.ExpiresAt,
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification code not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active verification code: %w", err)
	}
	code.Purpose = models.CodePurpose(purposeStr)
	return &code, nil
}

// Consume flips used=true with a conditional update so two concurrent
// consumers of the same code cannot both succeed.
func (s *PostgresStore) Consume(ctx context.Context, codeID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_codes SET used = TRUE WHERE id = $1 AND used = FALSE`, codeID)
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume verification code rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("verification code: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

// DeleteStale removes used codes and codes past their expiry.
func (s *PostgresStore) DeleteStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE used = TRUE OR expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete stale verification codes: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale verification codes rows: %w", err)
	}
	return int(rows), nil
}
