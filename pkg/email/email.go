package email

//go:generate mockgen -source=email.go -destination=mocks/mock_sender.go -package=mocks Sender

import (
	"context"
	"log/slog"
	"time"
)

// Sender delivers a verification code to an address. Delivery failure is
// non-fatal to callers: a generated code stays valid whether or not the mail
// went out.
type Sender interface {
	Send(ctx context.Context, address, code, purpose string, ttl time.Duration) error
}

// LogSender writes the would-be delivery to the log instead of sending mail.
// Used in development and as a safe default when no provider is configured.
// The code itself is never logged.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, address, _, purpose string, ttl time.Duration) error {
	s.logger.InfoContext(ctx, "verification code delivery (log sender)",
		"address", address,
		"purpose", purpose,
		"ttl", ttl.String(),
	)
	return nil
}
