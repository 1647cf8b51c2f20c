// Package middleware provides Gin HTTP middleware for the medgate gateway:
// API key authentication, per-principal rate limiting, request telemetry
// capture, request IDs, security headers, and the trusted-origin guard for
// the internal privileged endpoints.
//
// Middleware ordering matters and is enforced in the router:
//
//	Security → RequestID → Metrics → Recovery → Telemetry → Auth → RateLimit → Handler
//
// Telemetry sits inside Recovery: it recovers a handler panic itself, emits
// an event with no response time, then re-panics so Recovery still produces
// the 500. Rate limiting runs after Auth so it can key on the resolved
// principal rather than the client address.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/auth"
	"github.com/medgate/medgate/internal/cache"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/telemetry"
)

// PrincipalIDKey is the gin.Context key under which the auth guard stores the
// resolved principal id for handlers and downstream middleware.
const PrincipalIDKey = "principal_id"

// unauthorizedBody is returned for both missing and invalid credentials.
// The distinction is logged server-side only, so callers cannot use the
// response to probe whether a guessed key exists.
var unauthorizedBody = gin.H{"error": "invalid or missing API key"}

// AuthMiddleware gates every protected endpoint: it resolves the caller's API
// key to a principal id, consulting the key cache first and falling back to
// the principal store, populating the cache on a miss.
//
// Two simultaneous requests with the same uncached key both fall through to
// the store and both write the cache; the writes carry the same value, so no
// lock is taken. A cache read error degrades to the store path rather than
// failing the request.
func AuthMiddleware(hasher *auth.Hasher, keyCache cache.KeyCache, principals *repositories.PrincipalRepository, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := auth.ExtractAPIKeyFromHeader(c.GetHeader(auth.AuthorizationHeader))
		if err != nil {
			telemetry.AuthRejectionsTotal.WithLabelValues("missing_key").Inc()
			slog.Debug("auth: no usable credential in request", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		digest := hasher.Hash(key)
		ctx := c.Request.Context()

		principalID, ok, err := keyCache.Get(ctx, digest)
		if err != nil {
			// Cache unavailability must not take authentication down with it.
			telemetry.AuthCacheLookupsTotal.WithLabelValues("error").Inc()
			slog.Warn("auth: key cache unavailable, falling back to store", "error", err)
		}
		if ok {
			telemetry.AuthCacheLookupsTotal.WithLabelValues("hit").Inc()
			c.Set(PrincipalIDKey, principalID)
			c.Next()
			return
		}
		if err == nil {
			telemetry.AuthCacheLookupsTotal.WithLabelValues("miss").Inc()
		}

		principal, err := principals.GetByDigest(ctx, digest)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				telemetry.AuthRejectionsTotal.WithLabelValues("invalid_key").Inc()
				slog.Debug("auth: unknown credential digest", "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
				return
			}
			slog.Error("auth: principal lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "the server encountered an internal error and was unable to complete your request",
			})
			return
		}

		// Exactly one cache write per miss, before the handler runs. A failed
		// write only costs the next request a store lookup.
		if err := keyCache.Set(ctx, digest, principal.ID, ttl); err != nil {
			slog.Warn("auth: failed to populate key cache", "principal_id", principal.ID, "error", err)
		}

		c.Set(PrincipalIDKey, principal.ID)
		c.Next()
	}
}
