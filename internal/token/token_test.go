package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduid/internal/auth/models"
	"eduid/internal/auth/store/account"
	"eduid/internal/auth/store/revocation"
)

func testConfig() Config {
	return Config{
		Secret:     "test-secret",
		Algorithm:  "HS256",
		Issuer:     "eduid-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

func testAccount(t *testing.T, accounts *account.InMemoryStore) *models.Account {
	t.Helper()
	acct := &models.Account{
		ID:        uuid.New(),
		Email:     "learner@example.com",
		Role:      models.RoleLearner,
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, accounts.Create(context.Background(), acct))
	return acct
}

func newTestService(t *testing.T) (*Service, *account.InMemoryStore, *revocation.InMemoryRegistry) {
	t.Helper()
	accounts := account.NewMemory()
	revocations := revocation.NewMemory()
	svc, err := New(testConfig(), revocations, accounts)
	require.NoError(t, err)
	return svc, accounts, revocations
}

func TestNew_RejectsNonHMACAlgorithm(t *testing.T) {
	cfg := testConfig()
	cfg.Algorithm = "RS256"
	_, err := New(cfg, revocation.NewMemory(), account.NewMemory())
	require.Error(t, err)
}

func TestNew_RejectsEmptySecret(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = ""
	_, err := New(cfg, revocation.NewMemory(), account.NewMemory())
	require.Error(t, err)
}

func TestIssueAndVerify_AccessToken(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	acct := testAccount(t, accounts)

	signed, err := svc.IssueAccessToken(acct)
	require.NoError(t, err)

	claims, err := svc.Verify(context.Background(), signed, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, acct.ID.String(), claims.UserID)
	assert.Equal(t, acct.Email, claims.Email)
	assert.Equal(t, string(models.RoleLearner), claims.Role)
	assert.NotEmpty(t, claims.ID, "jti must be set")
}

func TestVerify_RejectsWrongType(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	acct := testAccount(t, accounts)

	refresh, err := svc.IssueRefreshToken(acct.ID)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), refresh, TypeAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	access, err := svc.IssueAccessToken(acct)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), access, TypeRefresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	accounts := account.NewMemory()
	revocations := revocation.NewMemory()

	past := time.Now().Add(-time.Hour)
	svc, err := New(testConfig(), revocations, accounts, WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	acct := testAccount(t, accounts)

	signed, err := svc.IssueAccessToken(acct)
	require.NoError(t, err)

	// Fresh service with a real clock sees the token as expired.
	current, err := New(testConfig(), revocations, accounts)
	require.NoError(t, err)
	_, err = current.Verify(context.Background(), signed, TypeAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_RejectsTamperedToken(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	acct := testAccount(t, accounts)

	signed, err := svc.IssueAccessToken(acct)
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.Secret = "a-different-secret"
	other, err := New(otherCfg, revocation.NewMemory(), accounts)
	require.NoError(t, err)

	_, err = other.Verify(context.Background(), signed, TypeAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRotate_OldRefreshTokenNeverVerifiesAgain(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	acct := testAccount(t, accounts)
	ctx := context.Background()

	old, err := svc.IssueRefreshToken(acct.ID)
	require.NoError(t, err)

	pair, err := svc.Rotate(ctx, old)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, old, pair.RefreshToken)

	_, err = svc.Verify(ctx, old, TypeRefresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// The new refresh token still works.
	_, err = svc.Verify(ctx, pair.RefreshToken, TypeRefresh)
	assert.NoError(t, err)
}

func TestRotate_RevokedTokenRejected(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	acct := testAccount(t, accounts)
	ctx := context.Background()

	refresh, err := svc.IssueRefreshToken(acct.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, refresh))

	_, err = svc.Rotate(ctx, refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRotate_PicksUpCurrentRole(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	acct := testAccount(t, accounts)
	ctx := context.Background()

	refresh, err := svc.IssueRefreshToken(acct.ID)
	require.NoError(t, err)

	require.NoError(t, accounts.UpdateRole(ctx, acct.ID, models.RoleEducator, time.Now()))

	pair, err := svc.Rotate(ctx, refresh)
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleEducator), claims.Role)
}

func TestRevoke_AcceptsExpiredToken(t *testing.T) {
	accounts := account.NewMemory()
	revocations := revocation.NewMemory()

	past := time.Now().Add(-time.Hour)
	issuer, err := New(testConfig(), revocations, accounts, WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	acct := testAccount(t, accounts)

	signed, err := issuer.IssueAccessToken(acct)
	require.NoError(t, err)

	current, err := New(testConfig(), revocations, accounts)
	require.NoError(t, err)
	assert.NoError(t, current.Revoke(context.Background(), signed))
}

// flakyRegistry fails a fixed number of lookups before recovering.
type flakyRegistry struct {
	*revocation.InMemoryRegistry
	failures int
}

func (f *flakyRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("store unavailable")
	}
	return f.InMemoryRegistry.IsRevoked(ctx, jti)
}

func TestVerify_RetriesRevocationLookup(t *testing.T) {
	accounts := account.NewMemory()
	registry := &flakyRegistry{InMemoryRegistry: revocation.NewMemory(), failures: 2}
	svc, err := New(testConfig(), registry, accounts)
	require.NoError(t, err)
	acct := testAccount(t, accounts)
	ctx := context.Background()

	signed, err := svc.IssueAccessToken(acct)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, signed))

	// Two failures are within the retry budget, so the lookup recovers and the
	// revocation is observed.
	_, err = svc.Verify(ctx, signed, TypeAccess)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestVerify_FailsOpenWhenRegistryUnavailable(t *testing.T) {
	accounts := account.NewMemory()
	registry := &flakyRegistry{InMemoryRegistry: revocation.NewMemory(), failures: 100}
	svc, err := New(testConfig(), registry, accounts)
	require.NoError(t, err)
	acct := testAccount(t, accounts)

	signed, err := svc.IssueAccessToken(acct)
	require.NoError(t, err)

	// Registry down for every attempt: the token is accepted rather than
	// taking authentication offline.
	claims, err := svc.Verify(context.Background(), signed, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, acct.ID.String(), claims.UserID)
}
