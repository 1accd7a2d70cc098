package middlewares

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/geocoder89/placehunt/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit enforces l for the key derived by keyFn under scope. A limiter
// that errors lets the request through.
func RateLimit(l ratelimit.Limiter, scope string, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		d, err := l.Allow(c.Request.Context(), scope+":"+key)
		if err != nil {
			slog.Default().WarnContext(c.Request.Context(), "rate limiter unavailable", "scope", scope, "err", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			secs := int(d.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			abort(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.")
			return
		}

		c.Next()
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// For authenticated endpoints: rate limit by user id if available
func KeyByUserOrIP(c *gin.Context) string {
	if id, ok := IdentityFromContext(c); ok {
		return "user:" + id.SubjectID
	}
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}

	return ip
}
