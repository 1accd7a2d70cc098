package middlewares

import (
	"net/http"

	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/gin-gonic/gin"
)

// RequireAdmin must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthenticated", "Token missing")
			return
		}
		if !authz.RequireAdmin(id) {
			abort(c, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}
		c.Next()
	}
}
