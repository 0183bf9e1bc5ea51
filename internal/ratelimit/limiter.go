package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"eduid/internal/ratelimit/store/counter"
	dErrors "eduid/pkg/domain-errors"
)

// Limiter enforces fixed-window limits keyed by (subject, kind). Windows are
// clock-aligned, non-overlapping buckets: windowStart = now.Truncate(window).
// A 2x burst at window boundaries is accepted in exchange for O(1) storage and
// no background sweeping.
type Limiter struct {
	store  counter.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for limiter decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Limiter over the given counter store.
func New(store counter.Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Allow records one attempt for (key, kind) and returns a rate_limited domain
// error when the window's count exceeds limit. Counters are retained for one
// extra window past their own so boundary reads never see a live window as
// expired.
func (l *Limiter) Allow(ctx context.Context, key, kind string, limit int, window time.Duration) error {
	now := l.now()
	windowStart := now.Truncate(window)
	expiresAt := windowStart.Add(2 * window)

	count, err := l.store.Incr(ctx, key, kind, windowStart, expiresAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
	}
	if count > limit {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"kind", kind,
			"limit", limit,
			"count", count,
			"window", window.String(),
		)
		return dErrors.New(dErrors.CodeRateLimited, "too many attempts, try again later")
	}
	return nil
}
