package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithUserID records the authenticated user for log lines emitted
// while serving the request.
func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// Ctx returns the global logger enriched with the request and user IDs
// stored in ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		lc = lc.Str("user_id", id)
	}
	l := lc.Logger()
	return &l
}
