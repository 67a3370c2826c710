package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketplace/internal/actor"
	"github.com/smallbiznis/marketplace/internal/auth"
	obscontext "github.com/smallbiznis/marketplace/internal/observability/context"
)

const contextActorKey = "actor"

// AuthRequired verifies the bearer token and attaches the caller to the
// request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		a, err := s.tokens.Parse(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := actor.WithActor(c.Request.Context(), a)
		ctx = obscontext.WithActor(ctx, string(a.Role), a.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorKey, a)
		c.Next()
	}
}

func (s *Server) actorFromContext(c *gin.Context) (actor.Actor, bool) {
	if v, ok := c.Get(contextActorKey); ok {
		if a, ok := v.(actor.Actor); ok && a.Valid() {
			return a, true
		}
	}
	a, ok := actor.FromContext(c.Request.Context())
	if !ok || !a.Valid() {
		return actor.Actor{}, false
	}
	return a, true
}
