package guard

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc maps a request to the identifier and limit type used for the
// admission check.
type KeyFunc func(c *gin.Context) (identifier, limitType string)

// IPKeyFunc limits by client IP under the given limit type.
func IPKeyFunc(limitType string) KeyFunc {
	return func(c *gin.Context) (string, string) {
		return "ip:" + c.ClientIP(), limitType
	}
}

// APIKeyFunc limits by API key when present, falling back to client IP.
func APIKeyFunc(limitType string) KeyFunc {
	return func(c *gin.Context) (string, string) {
		if key := c.GetHeader("X-API-Key"); key != "" {
			return "api:" + key, limitType
		}
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			return "api:" + strings.TrimPrefix(auth, "Bearer "), limitType
		}
		return "ip:" + c.ClientIP(), limitType
	}
}

// Middleware enforces admission control on a gin route group. Enforcement
// here is a thin shim; all decision logic stays in the Limiter.
func Middleware(limiter *Limiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier, limitType := key(c)
		rc := &RequestContext{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			URI:       c.Request.URL.Path,
			UserID:    c.GetString("user_id"),
		}

		decision := limiter.CheckLimit(c.Request.Context(), identifier, limitType, rc)

		if decision.Remaining >= 0 {
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		}
		if !decision.ResetTime.IsZero() {
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetTime.Unix()))
		}
		if decision.Algorithm != "" {
			c.Header("X-RateLimit-Algorithm", decision.Algorithm)
		}

		if decision.Allowed {
			c.Next()
			return
		}

		if decision.RetryAfter > 0 {
			c.Header("Retry-After", fmt.Sprintf("%.0f", decision.RetryAfter.Seconds()))
		}
		status := http.StatusTooManyRequests
		message := "rate limit exceeded"
		if decision.Blacklisted {
			status = http.StatusForbidden
			message = fmt.Sprintf("temporarily banned until %s",
				decision.BanExpiresAt.UTC().Format(time.RFC3339))
		}
		c.AbortWithStatusJSON(status, gin.H{"error": message})
	}
}
