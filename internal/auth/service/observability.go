package service

import (
	"context"

	"eduid/internal/platform/middleware"
)

// logAudit records a security-relevant event in the structured audit stream.
// Attributes never include credentials, codes, or raw tokens.
func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// authFailure records a rejected authentication attempt and bumps the failure
// counter. The reason stays coarse so the log cannot be used to probe accounts.
func (s *Service) authFailure(ctx context.Context, reason string, attributes ...any) {
	if s.metrics != nil {
		s.metrics.IncrementAuthFailures()
	}
	if s.logger == nil {
		return
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "reason", reason, "log_type", "audit")
	s.logger.WarnContext(ctx, "authentication failed", args...)
}
