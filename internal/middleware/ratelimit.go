// ratelimit.go enforces per-principal request rate limits backed by Redis, so
// the limit holds across gateway replicas. Unauthenticated traffic (the
// internal endpoints, health checks) is keyed by client IP instead.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/medgate/medgate/internal/config"
)

// RateLimitMiddleware limits each caller with a GCRA limiter in Redis.
// Register it after AuthMiddleware so the key is the resolved principal id;
// requests that never reach auth fall back to the client IP.
//
// A Redis error fails open: the request proceeds and the error is logged.
// Dropping legitimate traffic because the limiter store blinked is a worse
// failure mode than briefly not limiting.
func RateLimitMiddleware(limiter *redis_rate.Limiter, cfg config.RateLimitingConfig) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   cfg.RequestsPerMinute,
		Period: time.Minute,
		Burst:  cfg.Burst,
	}

	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), rateLimitKey(c), limit)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter/time.Second) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated principal over the client address so
// one principal cannot spread load across source IPs, and NAT'd callers are
// not lumped together once authenticated.
func rateLimitKey(c *gin.Context) string {
	if principalID := c.GetString(PrincipalIDKey); principalID != "" {
		return "principal:" + principalID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
