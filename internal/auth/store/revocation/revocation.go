package revocation

import (
	"context"
	"sync"
	"time"

	"eduid/internal/auth/models"

	"github.com/google/uuid"
)

// Registry records revoked token identifiers until their natural expiry.
// Revoking an already-revoked JTI is a no-op, so retried rotations stay safe.
type Registry interface {
	// Revoke upserts a revocation record for jti. An existing record only has
	// its status forced to revoked; content is not overwritten.
	Revoke(ctx context.Context, jti string, ownerID uuid.UUID, tokenHash string, expiresAt time.Time) error

	// IsRevoked reports whether jti is revoked and the record has not itself
	// expired. Expired records are treated as absent.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// InMemoryRegistry is an in-memory Registry for tests and local development.
// Expiry is evaluated lazily at read time; DeleteExpired sweeps on demand.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*models.RevocationRecord
}

// NewMemory creates a new in-memory revocation registry.
func NewMemory() *InMemoryRegistry {
	return &InMemoryRegistry{records: make(map[string]*models.RevocationRecord)}
}

func (r *InMemoryRegistry) Revoke(_ context.Context, jti string, ownerID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[jti]; ok {
		existing.Status = models.RevocationRevoked
		return nil
	}
	r.records[jti] = &models.RevocationRecord{
		JTI:       jti,
		OwnerID:   ownerID,
		TokenHash: tokenHash,
		Status:    models.RevocationRevoked,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *InMemoryRegistry) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(record.ExpiresAt) {
		return false, nil
	}
	return record.Status == models.RevocationRevoked, nil
}

// DeleteExpired removes records whose expiry has passed.
func (r *InMemoryRegistry) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for jti, record := range r.records {
		if now.After(record.ExpiresAt) {
			delete(r.records, jti)
			deleted++
		}
	}
	return deleted, nil
}
