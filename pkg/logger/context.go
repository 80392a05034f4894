package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With binds a logger carrying fields to ctx, extending any logger already bound.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// From returns the logger bound to ctx, or the process logger.
func From(ctx context.Context) *slog.Logger {
	return FromOr(ctx, nil)
}

// FromOr returns the logger bound to ctx, or fallback when none is bound.
// A nil fallback means the process logger.
func FromOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return LoggerWrapper()
}
