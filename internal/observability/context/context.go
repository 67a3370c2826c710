// Package context carries request correlation values used by logging and tracing.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

type actorValue struct {
	role     string
	username string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithActor(ctx context.Context, role, username string) context.Context {
	return context.WithValue(ctx, actorKey, actorValue{
		role:     strings.TrimSpace(role),
		username: strings.TrimSpace(username),
	})
}

// ActorFromContext returns the caller's role and username, empty when unauthenticated.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, _ := ctx.Value(actorKey).(actorValue)
	return v.role, v.username
}
