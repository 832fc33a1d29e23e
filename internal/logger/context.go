package logger

import (
	"context"

	"go.uber.org/zap"
)

// loggerKey is the private context key for the per-request logger.
type loggerKey struct{}

// ContextWithLogger attaches a logger to the context. The HTTP middleware
// uses it to carry the request-scoped logger into the usecase layer.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger attached to the context, or a no-op
// logger so callers never nil-check.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
