package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, acct *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, name, phone, role, status, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		acct.ID,
		acct.Email,
		acct.PasswordHash,
		acct.Name,
		acct.Phone,
		string(acct.Role),
		string(acct.Status),
		acct.Language,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	query := selectAccount + ` WHERE id = $1`
	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return acct, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := selectAccount + ` WHERE email = $1`
	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return acct, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, accountID uuid.UUID, name, phone, language string, updatedAt time.Time) error {
	query := `
		UPDATE accounts
		SET name = $2, phone = $3, language = $4, updated_at = $5
		WHERE id = $1
	`
	return s.exec(ctx, "update account profile", query, accountID, name, phone, language, updatedAt)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, accountID uuid.UUID, passwordHash string, updatedAt time.Time) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`
	return s.exec(ctx, "update account password", query, accountID, passwordHash, updatedAt)
}

func (s *PostgresStore) UpdateRole(ctx context.Context, accountID uuid.UUID, role models.Role, updatedAt time.Time) error {
	query := `
		UPDATE accounts
		SET role = $2, updated_at = $3
		WHERE id = $1
	`
	return s.exec(ctx, "update account role", query, accountID, string(role), updatedAt)
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

const selectAccount = `
	SELECT id, email, password_hash, name, phone, role, status, language, created_at, updated_at
	FROM accounts`

type accountRow interface {
	Scan(dest ...any) error
}

func scanAccount(row accountRow) (*models.Account, error) {
	var acct models.Account
	var role, status string
	if err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.PasswordHash,
		&acct.Name,
		&acct.Phone,
		&role,
		&status,
		&acct.Language,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	); err != nil {
		return nil, err
	}
	acct.Role = models.Role(role)
	acct.Status = models.AccountStatus(status)
	return &acct, nil
}
