package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	authmodels "eduid/internal/auth/models"
	"eduid/internal/rbac/models"
	"eduid/internal/sentinel"

	"github.com/google/uuid"
)

// ErrPendingExists signals a violation of the single-pending-application
// invariant.
var ErrPendingExists = errors.New("pending application already exists")

// RoleUpdater applies an approved role to the applicant's account. The
// postgres store writes the accounts table inside its own transaction; the
// memory store delegates through this interface.
type RoleUpdater interface {
	UpdateRole(ctx context.Context, accountID uuid.UUID, role authmodels.Role, updatedAt time.Time) error
}

// InMemoryStore keeps role applications in memory for tests.
// Mutations hold one coarse lock, standing in for the database transaction.
type InMemoryStore struct {
	mu       sync.Mutex
	apps     map[uuid.UUID]*models.RoleApplication
	history  map[uuid.UUID][]*models.HistoryEntry
	accounts RoleUpdater
}

// NewMemory constructs an empty in-memory application store.
func NewMemory(accounts RoleUpdater) *InMemoryStore {
	return &InMemoryStore{
		apps:     make(map[uuid.UUID]*models.RoleApplication),
		history:  make(map[uuid.UUID][]*models.HistoryEntry),
		accounts: accounts,
	}
}

func (s *InMemoryStore) CreateWithHistory(_ context.Context, app *models.RoleApplication, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apps {
		if existing.UserID == app.UserID && existing.Status == models.StatusPending {
			return ErrPendingExists
		}
	}
	appClone := *app
	s.apps[app.ID] = &appClone
	entryClone := *entry
	s.history[app.ID] = append(s.history[app.ID], &entryClone)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, applicationID uuid.UUID) (*models.RoleApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[applicationID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	clone := *app
	return &clone, nil
}

func (s *InMemoryStore) HasPending(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, app := range s.apps {
		if app.UserID == userID && app.Status == models.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListPending(_ context.Context) ([]*models.RoleApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.RoleApplication
	for _, app := range s.apps {
		if app.Status == models.StatusPending {
			clone := *app
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.RoleApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.RoleApplication
	for _, app := range s.apps {
		if app.UserID == userID {
			clone := *app
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

func (s *InMemoryStore) History(_ context.Context, applicationID uuid.UUID) ([]*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[applicationID]
	out := make([]*models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

// Review applies an administrator decision. The transition is conditional on
// the application still being pending; the account role write and the history
// row share the same critical section.
func (s *InMemoryStore) Review(ctx context.Context, decision models.ReviewDecision, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[decision.ApplicationID]
	if !ok {
		return fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	if app.Status != models.StatusPending {
		return fmt.Errorf("application status %s: %w", app.Status, sentinel.ErrInvalidState)
	}

	if decision.Approve {
		if err := s.accounts.UpdateRole(ctx, app.UserID, decision.NewRole, decision.ReviewedAt); err != nil {
			return err
		}
		app.Status = models.StatusApproved
	} else {
		app.Status = models.StatusRejected
	}
	reviewerID := decision.ReviewerID
	reviewedAt := decision.ReviewedAt
	app.ReviewerID = &reviewerID
	app.ReviewedAt = &reviewedAt
	app.ReviewerComment = decision.Comment

	entryClone := *entry
	s.history[app.ID] = append(s.history[app.ID], &entryClone)
	return nil
}

// Cancel transitions a pending application to cancelled, owner-only.
func (s *InMemoryStore) Cancel(_ context.Context, applicationID, userID uuid.UUID, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[applicationID]
	if !ok || app.UserID != userID || app.Status != models.StatusPending {
		return fmt.Errorf("application not cancellable: %w", sentinel.ErrNotFound)
	}
	app.Status = models.StatusCancelled

	entryClone := *entry
	s.history[app.ID] = append(s.history[app.ID], &entryClone)
	return nil
}
