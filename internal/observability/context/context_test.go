package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	ctx := WithRequestID(context.Background(), " req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestActor(t *testing.T) {
	role, user := ActorFromContext(context.Background())
	assert.Empty(t, role)
	assert.Empty(t, user)

	ctx := WithActor(context.Background(), "ROL_ADMIN", "root")
	role, user = ActorFromContext(ctx)
	assert.Equal(t, "ROL_ADMIN", role)
	assert.Equal(t, "root", user)
}
