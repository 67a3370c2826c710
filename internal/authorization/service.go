package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/marketplace/internal/actor"
)

type Service interface {
	Authorize(ctx context.Context, a actor.Actor, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
