package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RevocationStore exposes cleanup for revocation records whose token would
// have expired anyway.
type RevocationStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CodeStore exposes cleanup for expired and consumed verification codes.
type CodeStore interface {
	DeleteStale(ctx context.Context, now time.Time) (int, error)
}

// CounterStore exposes cleanup for rate limit windows that can no longer be
// consulted.
type CounterStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Result summarizes the deletions performed by a cleanup run.
type Result struct {
	DeletedRevocations int
	DeletedCodes       int
	DeletedCounters    int
}

// Service periodically removes expired auth artifacts. Expiry is always
// enforced at read time; this worker only reclaims storage.
type Service struct {
	revocations RevocationStore
	codes       CodeStore
	counters    CounterStore
	interval    time.Duration
	logger      *slog.Logger
}

// Option configures Service.
type Option func(*Service)

// WithInterval overrides the cleanup interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger overrides the logger used for cleanup errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a cleanup Service with required stores and options applied.
func New(revocations RevocationStore, codes CodeStore, counters CounterStore, opts ...Option) (*Service, error) {
	if revocations == nil || codes == nil || counters == nil {
		return nil, fmt.Errorf("revocations, codes, and counters stores are required")
	}
	svc := &Service{
		revocations: revocations,
		codes:       codes,
		counters:    counters,
		interval:    5 * time.Minute,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single cleanup pass over revocation records, verification
// codes, and rate limit counters. Errors are aggregated so one failing store
// does not starve the others.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	now := time.Now()
	var res Result
	var errs []error

	deletedRevocations, err := s.revocations.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired revocations: %w", err))
	} else {
		res.DeletedRevocations = deletedRevocations
	}

	deletedCodes, err := s.codes.DeleteStale(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete stale verification codes: %w", err))
	} else {
		res.DeletedCodes = deletedCodes
	}

	deletedCounters, err := s.counters.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired rate limit counters: %w", err))
	} else {
		res.DeletedCounters = deletedCounters
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
