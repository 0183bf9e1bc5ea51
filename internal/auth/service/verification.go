package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"eduid/internal/auth/models"
	"eduid/internal/sentinel"
	dErrors "eduid/pkg/domain-errors"

	"github.com/google/uuid"
)

// IssueResult reports when an issued code lapses.
type IssueResult struct {
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

// SendVerificationCode issues a single-use code for (email, purpose). The
// rate limiter runs first; when the window is exhausted nothing is generated.
func (s *Service) SendVerificationCode(ctx context.Context, emailAddr string, purpose models.CodePurpose) (*IssueResult, error) {
	emailAddr = models.NormalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	switch purpose {
	case models.PurposeRegister, models.PurposeResetPassword, models.PurposeVerifyEmail:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown code purpose")
	}

	if err := s.allowIssue(ctx, emailAddr, purpose); err != nil {
		return nil, err
	}
	return s.generateAndDeliver(ctx, emailAddr, purpose)
}

func (s *Service) allowIssue(ctx context.Context, emailAddr string, purpose models.CodePurpose) error {
	err := s.limiter.Allow(ctx, emailAddr, string(purpose), s.cfg.CodeRateLimit, s.cfg.CodeRateWindow)
	if err != nil && dErrors.HasCode(err, dErrors.CodeRateLimited) && s.metrics != nil {
		s.metrics.IncrementRateLimited(string(purpose))
	}
	return err
}

// generateAndDeliver persists a fresh code and attempts delivery. Delivery
// failure is logged and swallowed: the persisted code is valid whether or not
// the mail arrived.
func (s *Service) generateAndDeliver(ctx context.Context, emailAddr string, purpose models.CodePurpose) (*IssueResult, error) {
	codeValue, err := randomCode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate code")
	}

	now := s.now()
	code := &models.VerificationCode{
		ID:        uuid.New(),
		Email:     emailAddr,
		Code:      codeValue,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
		CreatedAt: now,
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store code")
	}

	if s.sender != nil {
		if err := s.sender.Send(ctx, emailAddr, codeValue, string(purpose), s.cfg.CodeTTL); err != nil {
			s.logger.WarnContext(ctx, "verification code delivery failed",
				"purpose", string(purpose),
				"error", err,
			)
		}
	}

	s.logAudit(ctx, "verification_code_issued", "purpose", string(purpose))
	if s.metrics != nil {
		s.metrics.IncrementCodesIssued(string(purpose))
	}
	return &IssueResult{
		ExpiresAt: code.ExpiresAt,
		ExpiresIn: int(s.cfg.CodeTTL / time.Second),
	}, nil
}

// VerifyCode consumes the most recent active code for (email, purpose).
// Exactly one consume per code can succeed; the conditional update in the
// store closes the race between concurrent verifiers.
func (s *Service) VerifyCode(ctx context.Context, emailAddr, supplied string, purpose models.CodePurpose) error {
	emailAddr = models.NormalizeEmail(emailAddr)

	code, err := s.codes.FindActive(ctx, emailAddr, purpose, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(ErrCodeExpired, dErrors.CodeInvalidInput, ErrCodeExpired.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "look up code")
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(supplied)) != 1 {
		return dErrors.Wrap(ErrCodeInvalid, dErrors.CodeInvalidInput, ErrCodeInvalid.Error())
	}

	if err := s.codes.Consume(ctx, code.ID); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrNotFound) {
			// Lost the race against a concurrent consume of the same code.
			return dErrors.Wrap(ErrCodeExpired, dErrors.CodeInvalidInput, ErrCodeExpired.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "consume code")
	}

	s.logAudit(ctx, "verification_code_consumed", "purpose", string(purpose))
	return nil
}

// randomCode draws a uniform 6-digit code from crypto/rand.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
