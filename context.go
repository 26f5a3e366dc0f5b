package flowengine

import (
	"context"
	"io"
	"log/slog"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// WithLogger attaches a logger to the context passed into node handlers.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext returns the logger a handler should use. Falls back to
// a discard logger so handlers never need a nil check.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
