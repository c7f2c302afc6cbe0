// Package ctxlog carries a *slog.Logger through context.Context so that
// node types, executors and dispatch hooks log with the attributes of the
// dispatch that invoked them.
package ctxlog

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger returns a copy of ctx that carries logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// With returns a copy of ctx whose logger has args added to it.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// Detach returns a context that keeps the logger of ctx but none of its
// deadline, cancellation or other values. Work that outlives the call that
// started it runs under a detached context.
func Detach(ctx context.Context) context.Context {
	return WithLogger(context.Background(), FromContext(ctx))
}
