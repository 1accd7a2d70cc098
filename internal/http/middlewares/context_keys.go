package middlewares

import (
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/gin-gonic/gin"
)

const (
	CtxRequestID = "request_id"
	ctxIdentity  = "auth.identity"
)

func RequestIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(CtxRequestID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.GetHeader(requestIDHeader)
}

// IdentityFromContext returns the caller stored by RequireAuth.
func IdentityFromContext(c *gin.Context) (authz.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return authz.Identity{}, false
	}
	id, ok := v.(authz.Identity)
	return id, ok && id.SubjectID != ""
}

// abort writes the shared error envelope and stops the chain.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": RequestIDFromContext(c),
		},
	})
}
