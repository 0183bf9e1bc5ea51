package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"
)

func newAccount(email string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$2a$12$hash",
		Name:         "Test User",
		Role:         models.RoleLearner,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreate_And_FindByEmail(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	acct := newAccount("a@example.com")
	require.NoError(t, store.Create(ctx, acct))

	found, err := store.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, found.ID)
	assert.Equal(t, models.RoleLearner, found.Role)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newAccount("a@example.com")))

	err := store.Create(ctx, newAccount("a@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestFindByID_NotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	acct := newAccount("a@example.com")
	require.NoError(t, store.Create(ctx, acct))

	updatedAt := time.Now().Add(time.Minute)
	require.NoError(t, store.UpdateProfile(ctx, acct.ID, "New Name", "+4712345678", "nb", updatedAt))

	found, err := store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", found.Name)
	assert.Equal(t, "+4712345678", found.Phone)
	assert.Equal(t, "nb", found.Language)
	assert.True(t, found.UpdatedAt.Equal(updatedAt))
}

func TestUpdatePassword(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	acct := newAccount("a@example.com")
	require.NoError(t, store.Create(ctx, acct))

	require.NoError(t, store.UpdatePassword(ctx, acct.ID, "$2a$12$newhash", time.Now()))

	found, err := store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$newhash", found.PasswordHash)
}

func TestUpdateRole(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	acct := newAccount("a@example.com")
	require.NoError(t, store.Create(ctx, acct))

	require.NoError(t, store.UpdateRole(ctx, acct.ID, models.RoleEducator, time.Now()))

	found, err := store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleEducator, found.Role)
}

func TestFind_ReturnsClone(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	acct := newAccount("a@example.com")
	require.NoError(t, store.Create(ctx, acct))

	found, err := store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	found.Name = "mutated"

	again, err := store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", again.Name, "callers must not reach store internals")
}
