package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/placehunt/internal/actorctx"
	"github.com/geocoder89/placehunt/internal/auth"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(raw string) (authz.Identity, error)
}

type AuthMiddleware struct {
	tokens TokenVerifier
}

func NewAuthMiddleware(tokens TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.ParseBearer(c.GetHeader("Authorization"))
		if err == nil {
			var id authz.Identity
			if id, err = m.tokens.Verify(raw); err == nil {
				c.Set(ctxIdentity, id)
				c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))
				c.Next()
				return
			}
		}

		slog.Default().DebugContext(c.Request.Context(), "token rejected", "reason", err.Error())
		abort(c, http.StatusUnauthorized, "unauthenticated", auth.PublicMessage(err))
	}
}
