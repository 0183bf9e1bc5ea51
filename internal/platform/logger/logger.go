// Package logger builds the process-wide slog logger. Output is JSON on
// stdout so audit events (log_type=audit) stay machine-parseable alongside
// regular application logs.
package logger

import (
	"log/slog"
	"os"
)

// New returns the JSON logger every service and middleware receives.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
