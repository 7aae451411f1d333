package middleware

import (
	"fmt"
	"strconv"
	"time"

	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"
	"breakbread-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules scales every group from the per-minute base limit.
func DefaultRateLimitRules(perMinute int64) map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"transfers":   {Limit: perMinute, Window: time.Minute},
		"investments": {Limit: perMinute, Window: time.Minute},
		"reads":       {Limit: perMinute * 3, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store failures let the request through.
func RateLimiter(store ports.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier prefers the authenticated account over the client IP.
func extractIdentifier(c *gin.Context) string {
	if id := AccountID(c); id != "" {
		return id
	}
	return c.ClientIP()
}
