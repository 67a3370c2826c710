// Package actor carries the authenticated caller through service calls.
package actor

import (
	"context"
	"strings"
)

type Role string

const (
	RoleAdmin        Role = "ROL_ADMIN"
	RoleCollaborator Role = "ROL_COLABORADOR"
)

// Actor is the authenticated caller. Token is the raw bearer credential and is
// only forwarded to downstream services that share the same issuer.
type Actor struct {
	Username string
	Role     Role
	Token    string
}

func (a Actor) Valid() bool {
	return strings.TrimSpace(a.Username) != ""
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Is reports whether the actor is the given user.
func (a Actor) Is(username string) bool {
	return a.Valid() && strings.EqualFold(strings.TrimSpace(a.Username), strings.TrimSpace(username))
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
