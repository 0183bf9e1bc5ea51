package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/auth/store/revocation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures. Callers translate these into domain errors at the
// service boundary.
var (
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("token malformed")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Type discriminates access from refresh tokens via the typ claim.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims are the signed token claims. Role and email are snapshots taken at
// issuance; rotation refreshes them from the current account record.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// AccountSource resolves token subjects to accounts during rotation.
type AccountSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Pair bundles a freshly minted access and refresh token.
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Config carries the signing parameters for the token service.
type Config struct {
	Secret     string
	Algorithm  string // HS256, HS384 or HS512
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Revocation lookups tolerate read-after-write lag in the backing store:
// up to 3 attempts with 50ms backoff (~150ms total), after which an
// unconfirmed lookup is treated as "not revoked". Availability wins over a
// lookup the store could not answer.
const (
	revocationLookupAttempts = 3
	revocationLookupBackoff  = 50 * time.Millisecond
)

// Service mints and verifies signed access/refresh tokens and orchestrates
// rotation against the revocation registry.
type Service struct {
	secret      []byte
	method      jwt.SigningMethod
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	revocations revocation.Registry
	accounts    AccountSource
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for fail-open revocation lookups.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
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

// New constructs a token service. The signing algorithm must be in the
// HMAC-SHA family; anything else is rejected here rather than at first use.
func New(cfg Config, revocations revocation.Registry, accounts AccountSource, opts ...Option) (*Service, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	s := &Service{
		secret:      []byte(cfg.Secret),
		method:      method,
		issuer:      cfg.Issuer,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		revocations: revocations,
		accounts:    accounts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// IssueAccessToken mints a short-lived access token carrying the account's
// current role and email.
func (s *Service) IssueAccessToken(acct *models.Account) (string, error) {
	return s.sign(Claims{
		UserID:    acct.ID.String(),
		Email:     acct.Email,
		Role:      string(acct.Role),
		TokenType: string(TypeAccess),
	}, s.accessTTL)
}

// IssueRefreshToken mints a long-lived refresh token for the subject.
func (s *Service) IssueRefreshToken(accountID uuid.UUID) (string, error) {
	return s.sign(Claims{
		UserID:    accountID.String(),
		TokenType: string(TypeRefresh),
	}, s.refreshTTL)
}

// IssuePair mints a fresh access+refresh pair for the account.
func (s *Service) IssuePair(acct *models.Account) (*Pair, error) {
	access, err := s.IssueAccessToken(acct)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(acct.ID)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    s.now().Add(s.accessTTL),
	}, nil
}

func (s *Service) sign(claims Claims, ttl time.Duration) (string, error) {
	jti, err := newJTI()
	if err != nil {
		return "", err
	}
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and checks signature, algorithm, issuer, expiry, and type,
// then consults the revocation registry by jti.
func (s *Service) Verify(ctx context.Context, tokenString string, expected Type) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != string(expected) {
		return nil, fmt.Errorf("expected %s token: %w", expected, ErrTokenMalformed)
	}
	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		// Fail open: an unanswerable lookup must not take the system down.
		s.logger.WarnContext(ctx, "revocation lookup failed, treating token as not revoked",
			"jti", claims.ID,
			"error", err,
		)
	} else if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("empty token: %w", ErrTokenMalformed)
	}
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// parseSkipValidation checks signature and algorithm but not expiry or other
// registered claims. Used by Revoke so logout can withdraw expired tokens.
func (s *Service) parseSkipValidation(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("empty token: %w", ErrTokenMalformed)
	}
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != s.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %q", t.Method.Alg())
	}
	return s.secret, nil
}

func (s *Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	var err error
	for attempt := 0; attempt < revocationLookupAttempts; attempt++ {
		revoked, err = s.revocations.IsRevoked(ctx, jti)
		if err == nil {
			return revoked, nil
		}
		if attempt == revocationLookupAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(revocationLookupBackoff):
		}
	}
	return false, err
}

// Rotate verifies the old refresh token, loads the owning account, mints a
// fresh pair, and unconditionally revokes the old token's jti before
// returning. Revoking an already-revoked jti is a no-op, so client retries of
// an interrupted rotation stay safe.
func (s *Service) Rotate(ctx context.Context, oldRefreshToken string) (*Pair, error) {
	claims, err := s.Verify(ctx, oldRefreshToken, TypeRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	ownerID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidRefreshToken)
	}
	acct, err := s.accounts.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	pair, err := s.IssuePair(acct)
	if err != nil {
		return nil, err
	}

	// Strict one-way rotation: the old refresh token must never verify again,
	// even before its natural expiry.
	expiresAt := s.now().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, ownerID, hashToken(oldRefreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("revoke rotated refresh token: %w", err)
	}
	return pair, nil
}

// Revoke withdraws a token by jti until its natural expiry. Signature is still
// verified; expiry is not, so logout can revoke tokens that already lapsed.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.parseSkipValidation(tokenString)
	if err != nil {
		return err
	}
	ownerID, _ := uuid.Parse(claims.UserID)
	expiresAt := s.now().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return s.revocations.Revoke(ctx, claims.ID, ownerID, hashToken(tokenString), expiresAt)
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}
