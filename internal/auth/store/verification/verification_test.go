package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"
)

func newCode(email string, purpose models.CodePurpose, createdAt time.Time) *models.VerificationCode {
	return &models.VerificationCode{
		ID:        uuid.New(),
		Email:     email,
		Code:      "123456",
		Purpose:   purpose,
		ExpiresAt: createdAt.Add(5 * time.Minute),
		CreatedAt: createdAt,
	}
}

func TestFindActive_ReturnsMostRecent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	older := newCode("a@example.com", models.PurposeRegister, now.Add(-2*time.Minute))
	newer := newCode("a@example.com", models.PurposeRegister, now.Add(-1*time.Minute))
	newer.Code = "654321"
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	found, err := store.FindActive(ctx, "a@example.com", models.PurposeRegister, now)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)
	assert.Equal(t, "654321", found.Code)
}

func TestFindActive_ScopedByPurpose(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, newCode("a@example.com", models.PurposeRegister, now)))

	_, err := store.FindActive(ctx, "a@example.com", models.PurposeResetPassword, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFindActive_IgnoresExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	expired := newCode("a@example.com", models.PurposeRegister, now.Add(-10*time.Minute))
	require.NoError(t, store.Create(ctx, expired))

	_, err := store.FindActive(ctx, "a@example.com", models.PurposeRegister, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestConsume_SecondConsumeFails(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	code := newCode("a@example.com", models.PurposeRegister, now)
	require.NoError(t, store.Create(ctx, code))

	require.NoError(t, store.Consume(ctx, code.ID))

	err := store.Consume(ctx, code.ID)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

	// A consumed code is no longer active.
	_, err = store.FindActive(ctx, "a@example.com", models.PurposeRegister, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestConsume_ConcurrentConsumersOnlyOneWins(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	code := newCode("a@example.com", models.PurposeRegister, time.Now())
	require.NoError(t, store.Create(ctx, code))

	const consumers = 50
	results := make(chan error, consumers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < consumers; i++ {
		go func() {
			start.Wait()
			results <- store.Consume(ctx, code.ID)
		}()
	}
	start.Done()

	var successes int
	for i := 0; i < consumers; i++ {
		if err := <-results; err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestConsume_UnknownCode(t *testing.T) {
	store := NewMemory()
	err := store.Consume(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteStale_RemovesUsedAndExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	used := newCode("a@example.com", models.PurposeRegister, now)
	expired := newCode("b@example.com", models.PurposeRegister, now.Add(-10*time.Minute))
	live := newCode("c@example.com", models.PurposeRegister, now)
	require.NoError(t, store.Create(ctx, used))
	require.NoError(t, store.Create(ctx, expired))
	require.NoError(t, store.Create(ctx, live))
	require.NoError(t, store.Consume(ctx, used.ID))

	deleted, err := store.DeleteStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.FindActive(ctx, "c@example.com", models.PurposeRegister, now)
	assert.NoError(t, err)
}
