// Package logger provides slog-based structured logging helpers.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the application logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// Scope returns an attribute that tags log records with a component scope,
// e.g. logger.Scope("governance.pipeline").
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error returns an attribute carrying an error value.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger creates the process-wide logger. The level is taken from
// LOG_LEVEL (debug|info|warn|error, case-insensitive, default info).
// In production (GO_ENV=production) records are emitted as JSON.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
