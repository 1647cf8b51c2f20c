// handlers.go implements the collector's HTTP handlers: event ingest, recent
// history, counters, fleet analysis, and the live counter stream.
package collector

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/db/models"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/telemetry"
)

// Handler bundles the collector's dependencies.
type Handler struct {
	events *repositories.EventRepository
	hub    *Hub
}

// NewHandler creates a collector Handler.
func NewHandler(events *repositories.EventRepository, hub *Hub) *Handler {
	return &Handler{events: events, hub: hub}
}

// Ingest handles POST /api/v1/logs: it durably records one event and then
// notifies any open streams for the principal. The 200 response means the
// event is committed; the emitter treats anything else as a delivery failure.
func (h *Handler) Ingest(c *gin.Context) {
	var wire models.EventWire
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
		return
	}
	if wire.PrincipalID == "" || wire.Request.Method == "" || wire.Request.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event is missing required fields"})
		return
	}

	event := wire.Event()
	if err := h.events.Record(c.Request.Context(), event); err != nil {
		slog.Error("failed to record event", "principal_id", event.PrincipalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	class := "error"
	if event.IsSuccess() {
		class = "success"
	}
	telemetry.CollectorEventsRecordedTotal.WithLabelValues(class).Inc()

	// Stream notification happens strictly after commit, and only when a
	// stream is actually open; the counter re-read is skipped otherwise.
	if h.hub.HasSubscribers(event.PrincipalID) {
		if state, err := h.events.GetCounters(c.Request.Context(), event.PrincipalID); err != nil {
			slog.Warn("failed to read counters for stream notification",
				"principal_id", event.PrincipalID, "error", err)
		} else {
			h.hub.Notify(state)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// GetRecent handles GET /api/v1/logs/:principal_id: the principal's most
// recent events, newest first. An empty history returns an empty list.
func (h *Handler) GetRecent(c *gin.Context) {
	principalID := c.Param("principal_id")

	events, err := h.events.GetRecent(c.Request.Context(), principalID)
	if err != nil {
		slog.Error("failed to get recent events", "principal_id", principalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"principal_id": principalID,
		"events":       events,
	})
}

// GetCounters handles GET /api/v1/counters/:principal_id. A principal with no
// recorded traffic gets all-zero counters, not a 404.
func (h *Handler) GetCounters(c *gin.Context) {
	principalID := c.Param("principal_id")

	state, err := h.events.GetCounters(c.Request.Context(), principalID)
	if err != nil {
		slog.Error("failed to get counters", "principal_id", principalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve counters"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetAnalysis handles GET /api/v1/analysis: fleet-wide aggregates computed
// fresh on every call.
func (h *Handler) GetAnalysis(c *gin.Context) {
	analysis, err := h.events.GetAnalysis(c.Request.Context())
	if err != nil {
		slog.Error("failed to compute analysis", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute analysis"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// Stream handles GET /api/v1/stream/:principal_id: a server-sent-events
// stream of the principal's counter snapshots. The current state is sent
// immediately, then a snapshot follows each recorded event. The subscription
// ends when the client disconnects.
func (h *Handler) Stream(c *gin.Context) {
	principalID := c.Param("principal_id")

	ch, cancel := h.hub.Subscribe(principalID)
	defer cancel()

	// Initial snapshot so the client does not wait for traffic to see state.
	state, err := h.events.GetCounters(c.Request.Context(), principalID)
	if err != nil {
		slog.Error("failed to read counters for stream", "principal_id", principalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open stream"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("counters", state)
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case state, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("counters", state)
			return true
		case <-clientGone:
			return false
		}
	})
}

// Health handles GET /health for the collector.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
