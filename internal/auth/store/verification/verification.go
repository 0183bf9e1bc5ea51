package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"

	"github.com/google/uuid"
)

// Store persists single-use verification codes.
// Error Contract:
// - FindActive returns ErrNotFound (wrapped) when no unused, unexpired code exists
// - Consume returns ErrAlreadyUsed (wrapped) when the code was consumed concurrently
type Store interface {
	Create(ctx context.Context, code *models.VerificationCode) error

	// FindActive returns the most recent unused, unexpired code for
	// (email, purpose) as of now.
	FindActive(ctx context.Context, email string, purpose models.CodePurpose, now time.Time) (*models.VerificationCode, error)

	// Consume flips used=true. The update is conditional on used=false so two
	// concurrent consumers cannot both succeed.
	Consume(ctx context.Context, codeID uuid.UUID) error
}

// InMemoryStore keeps verification codes in memory for tests.
type InMemoryStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]*models.VerificationCode
}

// NewMemory constructs an empty in-memory verification code store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{codes: make(map[uuid.UUID]*models.VerificationCode)}
}

func (s *InMemoryStore) Create(_ context.Context, code *models.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *code
	s.codes[code.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindActive(_ context.Context, email string, purpose models.CodePurpose, now time.Time) (*models.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.VerificationCode
	for _, code := range s.codes {
		if code.Email != email || code.Purpose != purpose || !code.Active(now) {
			continue
		}
		if latest == nil || code.CreatedAt.After(latest.CreatedAt) {
			latest = code
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("verification code not found: %w", sentinel.ErrNotFound)
	}
	clone := *latest
	return &clone, nil
}

func (s *InMemoryStore) Consume(_ context.Context, codeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[codeID]
	if !ok {
		return fmt.Errorf("verification code not found: %w", sentinel.ErrNotFound)
	}
	if code.Used {
		return fmt.Errorf("verification code: %w", sentinel.ErrAlreadyUsed)
	}
	code.Used = true
	return nil
}

// DeleteStale removes used codes and codes past their expiry.
func (s *InMemoryStore) DeleteStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, code := range s.codes {
		if code.Used || now.After(code.ExpiresAt) {
			delete(s.codes, id)
			deleted++
		}
	}
	return deleted, nil
}
