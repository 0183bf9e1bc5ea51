package service

import (
	"context"
	"errors"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"
	dErrors "eduid/pkg/domain-errors"

	"golang.org/x/crypto/bcrypt"
)

// RequestPasswordReset issues a reset code when the account exists. The
// response is identical either way so callers cannot probe which emails are
// registered. The rate limiter runs before the account lookup for the same
// reason: a limited window looks the same for known and unknown addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = models.NormalizeEmail(emailAddr)
	if emailAddr == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}

	if err := s.allowIssue(ctx, emailAddr, models.PurposeResetPassword); err != nil {
		return err
	}

	if _, err := s.accounts.FindByEmail(ctx, emailAddr); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Intentionally indistinguishable from the success path.
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "look up account")
	}

	if _, err := s.generateAndDeliver(ctx, emailAddr, models.PurposeResetPassword); err != nil {
		return err
	}
	s.logAudit(ctx, "password_reset_requested")
	return nil
}

// ResetPassword consumes a valid reset code and stores a fresh hash.
func (s *Service) ResetPassword(ctx context.Context, emailAddr, code, newPassword string) error {
	emailAddr = models.NormalizeEmail(emailAddr)
	if newPassword == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "new password is required")
	}

	if err := s.VerifyCode(ctx, emailAddr, code, models.PurposeResetPassword); err != nil {
		return err
	}

	acct, err := s.accounts.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "look up account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}
	if err := s.accounts.UpdatePassword(ctx, acct.ID, string(hash), s.now()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store password")
	}

	s.logAudit(ctx, "password_reset_completed", "user_id", acct.ID.String())
	return nil
}
