package verification

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	return NewPostgres(db), mock
}

func TestPostgresCreate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	code := &models.VerificationCode{
		ID:        uuid.New(),
		Email:     "a@example.com",
		Code:      "123456",
		Purpose:   models.PurposeRegister,
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_codes")).
		WithArgs(code.ID, code.Email, code.Code, "register", false, code.ExpiresAt, code.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), code))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindActive(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "email", "code", "purpose", "used", "expires_at", "created_at",
	}).AddRow(id.String(), "a@example.com", "654321", "reset_password", false, now.Add(5*time.Minute), now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_codes")).
		WithArgs("a@example.com", "reset_password", now).
		WillReturnRows(rows)

	code, err := store.FindActive(context.Background(), "a@example.com", models.PurposeResetPassword, now)
	require.NoError(t, err)
	assert.Equal(t, id, code.ID)
	assert.Equal(t, "654321", code.Code)
	assert.Equal(t, models.PurposeResetPassword, code.Purpose)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindActive_NoRowsIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_codes")).
		WithArgs("a@example.com", "register", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindActive(context.Background(), "a@example.com", models.PurposeRegister, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsume(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_codes SET used = TRUE WHERE id = $1 AND used = FALSE")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Consume(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsume_NoRowsIsAlreadyUsed(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	// The conditional update is what makes the code single-use: a consumer
	// that loses the race matches zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_codes SET used = TRUE WHERE id = $1 AND used = FALSE")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Consume(context.Background(), id)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsume_PropagatesError(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_codes")).
		WillReturnError(errors.New("connection refused"))

	err := store.Consume(context.Background(), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, sentinel.ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteStale(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM verification_codes WHERE used = TRUE OR expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := store.DeleteStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
