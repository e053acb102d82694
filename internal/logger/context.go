package logger

import (
	"context"

	"go.uber.org/zap"
)

// requestLoggerKey carries the request-scoped logger installed by the
// HTTP middleware.
type requestLoggerKey struct{}

// ContextWithLogger returns a child context carrying logger.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey{}, logger)
}

// FromContext returns the request-scoped logger, or fallback when the
// context carries none (background jobs, tests).
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(requestLoggerKey{}).(*zap.Logger); ok {
		return l
	}
	return fallback
}
