package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduid/internal/ratelimit/store/counter"
	dErrors "eduid/pkg/domain-errors"
)

func TestAllow_PermitsUpToLimit(t *testing.T) {
	limiter := New(counter.NewMemory())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Allow(ctx, "user@example.com", "register", 5, time.Hour))
	}

	err := limiter.Allow(ctx, "user@example.com", "register", 5, time.Hour)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	limiter := New(counter.NewMemory())
	ctx := context.Background()

	require.Error(t, exhaust(ctx, limiter, "a@example.com", "register", 2))
	assert.NoError(t, limiter.Allow(ctx, "b@example.com", "register", 2, time.Hour))
}

func TestAllow_KindsAreIndependent(t *testing.T) {
	limiter := New(counter.NewMemory())
	ctx := context.Background()

	require.Error(t, exhaust(ctx, limiter, "a@example.com", "register", 2))
	assert.NoError(t, limiter.Allow(ctx, "a@example.com", "reset_password", 2, time.Hour))
}

func TestAllow_WindowRollover(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	limiter := New(counter.NewMemory(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.Error(t, exhaust(ctx, limiter, "a@example.com", "register", 3))

	// Crossing the window boundary resets the counter.
	now = time.Date(2026, 3, 1, 11, 0, 1, 0, time.UTC)
	assert.NoError(t, limiter.Allow(ctx, "a@example.com", "register", 3, time.Hour))
}

func TestAllow_SameWindowStaysExhausted(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	limiter := New(counter.NewMemory(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.Error(t, exhaust(ctx, limiter, "a@example.com", "register", 3))

	// Later in the same clock-aligned window the limit still holds.
	now = time.Date(2026, 3, 1, 10, 55, 0, 0, time.UTC)
	err := limiter.Allow(ctx, "a@example.com", "register", 3, time.Hour)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
}

// exhaust performs limit+1 attempts and returns the final error.
func exhaust(ctx context.Context, limiter *Limiter, key, kind string, limit int) error {
	var err error
	for i := 0; i < limit+1; i++ {
		err = limiter.Allow(ctx, key, kind, limit, time.Hour)
	}
	return err
}
