package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/httputil"
)

const (
	ContextActor = "actor"
	ContextToken = "bearer_token"
)

// ActorResolver authenticates a bearer token.
type ActorResolver interface {
	Resolve(ctx context.Context, token string) (*model.Actor, error)
}

type AuthMiddleware struct {
	resolver ActorResolver
}

func NewAuthMiddleware(resolver ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Authenticate resolves the bearer token and stores the actor in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			httputil.RespondWithError(c, errors.NewUnauthorized("missing or malformed authorization header", nil))
			return
		}

		actor, err := m.resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextActor, actor)
		c.Set(ContextToken, token)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Actor returns the authenticated actor. Handlers behind Authenticate can
// rely on it being set.
func Actor(c *gin.Context) *model.Actor {
	if v, ok := c.Get(ContextActor); ok {
		if a, ok := v.(*model.Actor); ok {
			return a
		}
	}
	return nil
}

// Token returns the raw bearer token of the request.
func Token(c *gin.Context) string {
	return c.GetString(ContextToken)
}
