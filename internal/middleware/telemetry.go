// telemetry.go captures one event per completed authenticated request and
// hands it to the emitter. Requests that never authenticated produce no
// event; the collector's counters track authenticated usage only.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/emitter"
)

// TelemetryMiddleware observes every request after the handler chain runs and
// enqueues the resulting event without blocking. It must be registered AFTER
// the recovery middleware: when a handler panics, the deferred recover here
// emits an event with no response time, then re-panics so the outer recovery
// middleware still produces the 500 response.
func TelemetryMiddleware(em *emitter.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				capture(c, em, start, http.StatusInternalServerError, nil)
				panic(r)
			}
		}()

		c.Next()

		latency := time.Since(start).Seconds()
		capture(c, em, start, c.Writer.Status(), &latency)
	}
}

func capture(c *gin.Context, em *emitter.Emitter, start time.Time, status int, respTime *float64) {
	principalID := c.GetString(PrincipalIDKey)
	if principalID == "" {
		return
	}

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "<no-route>"
	}

	em.Enqueue(emitter.NewEvent(
		principalID,
		c.Request.Method,
		endpoint,
		c.Request.URL.Path,
		c.ClientIP(),
		start,
		status,
		respTime,
	))
}
