package service

import (
	"context"
	"errors"

	"eduid/internal/auth/models"
	"eduid/internal/auth/store/account"
	"eduid/internal/sentinel"
	"eduid/internal/token"
	dErrors "eduid/pkg/domain-errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRequest carries the fields needed to create an account.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Language string
}

// AuthResult bundles the account and its freshly minted token pair.
type AuthResult struct {
	Account *models.Account `json:"account"`
	Tokens  *token.Pair     `json:"tokens"`
}

// Register creates a new account and mints its first token pair. New accounts
// start as learners; other roles go through the application workflow.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	emailAddr := models.NormalizeEmail(req.Email)
	if emailAddr == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "email and password are required")
	}

	if _, err := s.accounts.FindByEmail(ctx, emailAddr); err == nil {
		return nil, dErrors.Wrap(ErrEmailTaken, dErrors.CodeConflict, ErrEmailTaken.Error())
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	now := s.now()
	acct := &models.Account{
		ID:           uuid.New(),
		Email:        emailAddr,
		PasswordHash: string(hash),
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         models.RoleLearner,
		Status:       models.StatusActive,
		Language:     req.Language,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return nil, dErrors.Wrap(ErrEmailTaken, dErrors.CodeConflict, ErrEmailTaken.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create account")
	}

	pair, err := s.tokens.IssuePair(acct)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issue tokens")
	}

	s.logAudit(ctx, "account_registered", "user_id", acct.ID.String(), "role", string(acct.Role))
	if s.metrics != nil {
		s.metrics.IncrementAccountsRegistered()
	}
	return &AuthResult{Account: acct, Tokens: pair}, nil
}

// Login verifies the password and mints a token pair. The account is
// re-fetched after the password check so a concurrent disable is not lost to
// a stale read.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*AuthResult, error) {
	emailAddr = models.NormalizeEmail(emailAddr)

	acct, err := s.accounts.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.authFailure(ctx, "unknown email")
			return nil, dErrors.Wrap(ErrInvalidCredentials, dErrors.CodeUnauthorized, ErrInvalidCredentials.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		s.authFailure(ctx, "wrong password", "user_id", acct.ID.String())
		return nil, dErrors.Wrap(ErrInvalidCredentials, dErrors.CodeUnauthorized, ErrInvalidCredentials.Error())
	}

	// bcrypt comparison is slow by design; the status may have changed while
	// it ran.
	acct, err = s.accounts.FindByID(ctx, acct.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "refresh account")
	}
	if acct.Status == models.StatusDisabled {
		s.authFailure(ctx, "account disabled", "user_id", acct.ID.String())
		return nil, dErrors.Wrap(ErrAccountDisabled, dErrors.CodeForbidden, ErrAccountDisabled.Error())
	}

	pair, err := s.tokens.IssuePair(acct)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issue tokens")
	}

	s.logAudit(ctx, "login_succeeded", "user_id", acct.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementLogins()
		s.metrics.IncrementTokenRequests()
	}
	return &AuthResult{Account: acct, Tokens: pair}, nil
}

// Refresh rotates a refresh token into a fresh pair. The old token never
// verifies again once rotation succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	pair, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenRevoked),
			errors.Is(err, token.ErrInvalidRefreshToken):
			s.authFailure(ctx, "refresh rejected")
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid refresh token")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rotate tokens")
	}
	if s.metrics != nil {
		s.metrics.IncrementTokenRequests()
	}
	return pair, nil
}

// Logout revokes whatever tokens were supplied, best-effort. An invalid or
// already-revoked token is not an error: the client's goal state is reached
// either way.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	for _, t := range []string{accessToken, refreshToken} {
		if t == "" {
			continue
		}
		if err := s.tokens.Revoke(ctx, t); err != nil {
			s.logger.DebugContext(ctx, "logout revoke skipped", "error", err)
		}
	}
	s.logAudit(ctx, "logout")
}

// GetCurrentUser resolves an access token to its account.
func (s *Service) GetCurrentUser(ctx context.Context, accessToken string) (*models.Account, error) {
	claims, err := s.tokens.Verify(ctx, accessToken, token.TypeAccess)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid access token")
	}
	accountID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid access token")
	}
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up account")
	}
	return acct, nil
}

// UpdateProfile updates mutable profile fields and returns the fresh record.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, name, phone, language string) (*models.Account, error) {
	if err := s.accounts.UpdateProfile(ctx, accountID, name, phone, language, s.now()); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update profile")
	}
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "refresh account")
	}
	return acct, nil
}
