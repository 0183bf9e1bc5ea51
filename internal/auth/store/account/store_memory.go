package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"

	"github.com/google/uuid"
)

// ErrEmailTaken signals a violation of the unique-email invariant.
var ErrEmailTaken = errors.New("email already registered")

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound (wrapped) when the requested account does not exist
// - Return ErrEmailTaken when a create would duplicate an email
// - Return wrapped errors with context for infrastructure failures
// InMemoryStore keeps accounts in memory for tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*models.Account
}

// NewMemory constructs an empty in-memory account store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func (s *InMemoryStore) Create(_ context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == acct.Email {
			return ErrEmailTaken
		}
	}
	clone := *acct
	s.accounts[acct.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, accountID uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acct, ok := s.accounts[accountID]; ok {
		clone := *acct
		return &clone, nil
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if acct.Email == email {
			clone := *acct
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) UpdateProfile(_ context.Context, accountID uuid.UUID, name, phone, language string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	acct.Name = name
	acct.Phone = phone
	acct.Language = language
	acct.UpdatedAt = updatedAt
	return nil
}

func (s *InMemoryStore) UpdatePassword(_ context.Context, accountID uuid.UUID, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	acct.PasswordHash = passwordHash
	acct.UpdatedAt = updatedAt
	return nil
}

func (s *InMemoryStore) UpdateRole(_ context.Context, accountID uuid.UUID, role models.Role, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	acct.Role = role
	acct.UpdatedAt = updatedAt
	return nil
}
