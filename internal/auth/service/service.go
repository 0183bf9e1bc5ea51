package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/auth/store/verification"
	"eduid/internal/platform/metrics"
	"eduid/internal/token"
	"eduid/pkg/email"

	"github.com/google/uuid"
)

// Orchestrator failures. Wrapped into domain errors at the point of return so
// transports map them without string matching.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailTaken         = errors.New("email already registered")
	ErrCodeExpired        = errors.New("verification code expired or not found")
	ErrCodeInvalid        = errors.New("verification code invalid")
)

// AccountStore defines the persistence interface for accounts.
// Error Contract: all Find methods return ErrNotFound (wrapped) when the
// account does not exist; Create returns the store's email-taken error on a
// duplicate.
type AccountStore interface {
	Create(ctx context.Context, acct *models.Account) error
	FindByID(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateProfile(ctx context.Context, accountID uuid.UUID, name, phone, language string, updatedAt time.Time) error
	UpdatePassword(ctx context.Context, accountID uuid.UUID, passwordHash string, updatedAt time.Time) error
}

// TokenProvider mints, verifies, rotates, and revokes signed tokens.
type TokenProvider interface {
	IssuePair(acct *models.Account) (*token.Pair, error)
	Verify(ctx context.Context, tokenString string, expected token.Type) (*token.Claims, error)
	Rotate(ctx context.Context, refreshToken string) (*token.Pair, error)
	Revoke(ctx context.Context, tokenString string) error
}

// CodeLimiter throttles verification code issuance per (key, kind).
type CodeLimiter interface {
	Allow(ctx context.Context, key, kind string, limit int, window time.Duration) error
}

// Config carries the orchestrator's tunables.
type Config struct {
	BcryptCost     int
	CodeTTL        time.Duration
	CodeRateLimit  int
	CodeRateWindow time.Duration
}

const (
	defaultBcryptCost     = 12
	defaultCodeTTL        = 5 * time.Minute
	defaultCodeRateLimit  = 5
	defaultCodeRateWindow = time.Hour
)

// Service composes accounts, tokens, verification codes, and the rate limiter
// into the register/login/logout/refresh/password-reset use cases. It is the
// only component with business rules; stores stay mechanical.
type Service struct {
	accounts AccountStore
	tokens   TokenProvider
	codes    verification.Store
	limiter  CodeLimiter
	sender   email.Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables service metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEmailSender sets the delivery capability for verification codes.
func WithEmailSender(sender email.Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the auth orchestrator.
func New(accounts AccountStore, tokens TokenProvider, codes verification.Store, limiter CodeLimiter, cfg Config, opts ...Option) *Service {
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = defaultBcryptCost
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.CodeRateLimit <= 0 {
		cfg.CodeRateLimit = defaultCodeRateLimit
	}
	if cfg.CodeRateWindow <= 0 {
		cfg.CodeRateWindow = defaultCodeRateWindow
	}
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		codes:    codes,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}
