package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmodels "eduid/internal/auth/models"
	"eduid/internal/auth/store/account"
	"eduid/internal/rbac/models"
	"eduid/internal/sentinel"
)

func newStore(t *testing.T) (*InMemoryStore, *account.InMemoryStore, *authmodels.Account) {
	t.Helper()
	accounts := account.NewMemory()
	acct := &authmodels.Account{
		ID:        uuid.New(),
		Email:     "learner@example.com",
		Role:      authmodels.RoleLearner,
		Status:    authmodels.StatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, accounts.Create(context.Background(), acct))
	return NewMemory(accounts), accounts, acct
}

func newApplication(userID uuid.UUID, appliedAt time.Time) *models.RoleApplication {
	return &models.RoleApplication{
		ID:            uuid.New(),
		UserID:        userID,
		RequestedRole: authmodels.RoleEducator,
		Status:        models.StatusPending,
		Reason:        "teaching certificate attached",
		AppliedAt:     appliedAt,
	}
}

func submittedEntry(app *models.RoleApplication) *models.HistoryEntry {
	return &models.HistoryEntry{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		Action:        models.ActionSubmitted,
		ActorID:       app.UserID,
		CreatedAt:     app.AppliedAt,
	}
}

func TestCreateWithHistory_EnforcesSinglePending(t *testing.T) {
	store, _, acct := newStore(t)
	ctx := context.Background()

	first := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, first, submittedEntry(first)))

	second := newApplication(acct.ID, time.Now())
	err := store.CreateWithHistory(ctx, second, submittedEntry(second))
	assert.ErrorIs(t, err, ErrPendingExists)
}

func TestCreateWithHistory_AllowsNewAfterResolution(t *testing.T) {
	store, _, acct := newStore(t)
	ctx := context.Background()

	first := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, first, submittedEntry(first)))
	require.NoError(t, store.Cancel(ctx, first.ID, acct.ID, &models.HistoryEntry{
		ID: uuid.New(), ApplicationID: first.ID, Action: models.ActionCancelled, ActorID: acct.ID, CreatedAt: time.Now(),
	}))

	second := newApplication(acct.ID, time.Now())
	assert.NoError(t, store.CreateWithHistory(ctx, second, submittedEntry(second)))
}

func TestReview_ApproveWritesRoleAndStatus(t *testing.T) {
	store, accounts, acct := newStore(t)
	ctx := context.Background()
	adminID := uuid.New()

	app := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, app, submittedEntry(app)))

	reviewedAt := time.Now()
	decision := models.ReviewDecision{
		ApplicationID: app.ID,
		ReviewerID:    adminID,
		Approve:       true,
		Comment:       "credentials verified",
		ReviewedAt:    reviewedAt,
		UserID:        acct.ID,
		NewRole:       authmodels.RoleEducator,
	}
	entry := &models.HistoryEntry{
		ID: uuid.New(), ApplicationID: app.ID, Action: models.ActionApproved, ActorID: adminID, CreatedAt: reviewedAt,
	}
	require.NoError(t, store.Review(ctx, decision, entry))

	updated, err := store.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	require.NotNil(t, updated.ReviewerID)
	assert.Equal(t, adminID, *updated.ReviewerID)
	assert.Equal(t, "credentials verified", updated.ReviewerComment)

	refreshed, err := accounts.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, authmodels.RoleEducator, refreshed.Role)
}

func TestReview_RejectLeavesRoleUnchanged(t *testing.T) {
	store, accounts, acct := newStore(t)
	ctx := context.Background()

	app := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, app, submittedEntry(app)))

	decision := models.ReviewDecision{
		ApplicationID: app.ID,
		ReviewerID:    uuid.New(),
		Approve:       false,
		Comment:       "insufficient documentation",
		ReviewedAt:    time.Now(),
		UserID:        acct.ID,
		NewRole:       authmodels.RoleEducator,
	}
	entry := &models.HistoryEntry{
		ID: uuid.New(), ApplicationID: app.ID, Action: models.ActionRejected, ActorID: decision.ReviewerID, CreatedAt: decision.ReviewedAt,
	}
	require.NoError(t, store.Review(ctx, decision, entry))

	updated, err := store.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)

	refreshed, err := accounts.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, authmodels.RoleLearner, refreshed.Role)
}

func TestReview_NonPendingRejected(t *testing.T) {
	store, _, acct := newStore(t)
	ctx := context.Background()

	app := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, app, submittedEntry(app)))
	require.NoError(t, store.Cancel(ctx, app.ID, acct.ID, &models.HistoryEntry{
		ID: uuid.New(), ApplicationID: app.ID, Action: models.ActionCancelled, ActorID: acct.ID, CreatedAt: time.Now(),
	}))

	decision := models.ReviewDecision{
		ApplicationID: app.ID,
		ReviewerID:    uuid.New(),
		Approve:       true,
		ReviewedAt:    time.Now(),
		UserID:        acct.ID,
		NewRole:       authmodels.RoleEducator,
	}
	err := store.Review(ctx, decision, &models.HistoryEntry{ID: uuid.New(), ApplicationID: app.ID})
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestCancel_OnlyOwner(t *testing.T) {
	store, _, acct := newStore(t)
	ctx := context.Background()

	app := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, app, submittedEntry(app)))

	err := store.Cancel(ctx, app.ID, uuid.New(), &models.HistoryEntry{ID: uuid.New(), ApplicationID: app.ID})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// The application is untouched.
	found, err := store.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, found.Status)
}

func TestListPending_OrderedOldestFirst(t *testing.T) {
	store, accounts, acct := newStore(t)
	ctx := context.Background()

	other := &authmodels.Account{
		ID: uuid.New(), Email: "second@example.com", Role: authmodels.RoleLearner,
		Status: authmodels.StatusActive, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, accounts.Create(ctx, other))

	newer := newApplication(acct.ID, time.Now())
	older := newApplication(other.ID, time.Now().Add(-time.Hour))
	require.NoError(t, store.CreateWithHistory(ctx, newer, submittedEntry(newer)))
	require.NoError(t, store.CreateWithHistory(ctx, older, submittedEntry(older)))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

func TestHistory_RecordsEveryTransition(t *testing.T) {
	store, _, acct := newStore(t)
	ctx := context.Background()

	app := newApplication(acct.ID, time.Now())
	require.NoError(t, store.CreateWithHistory(ctx, app, submittedEntry(app)))

	adminID := uuid.New()
	decision := models.ReviewDecision{
		ApplicationID: app.ID, ReviewerID: adminID, Approve: true,
		ReviewedAt: time.Now(), UserID: acct.ID, NewRole: authmodels.RoleEducator,
	}
	require.NoError(t, store.Review(ctx, decision, &models.HistoryEntry{
		ID: uuid.New(), ApplicationID: app.ID, Action: models.ActionApproved, ActorID: adminID, CreatedAt: time.Now(),
	}))

	entries, err := store.History(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionSubmitted, entries[0].Action)
	assert.Equal(t, models.ActionApproved, entries[1].Action)
}
