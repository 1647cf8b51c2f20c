// Package emitter implements the gateway's fire-and-forget telemetry pipeline:
// a bounded in-memory queue drained by a fixed pool of workers that POST each
// event to the collector. Request handling never blocks on telemetry and never
// observes a delivery failure; when the queue is full the event is dropped and
// counted, and when delivery fails the event is discarded after logging.
package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/medgate/medgate/internal/config"
	"github.com/medgate/medgate/internal/db/models"
	"github.com/medgate/medgate/internal/safego"
	"github.com/medgate/medgate/internal/telemetry"
)

// ingestPath is the collector endpoint events are posted to.
const ingestPath = "/api/v1/logs"

// Emitter owns the telemetry queue and its worker pool. Construct with New,
// hand Enqueue to the telemetry middleware, and call Stop during shutdown.
type Emitter struct {
	queue    chan *models.EventWire
	client   *http.Client
	endpoint string

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates an Emitter and starts its workers immediately. collectorURL is
// the base URL of the collector service; the ingest path is appended here.
func New(cfg config.EmitterConfig, collectorURL string) *Emitter {
	e := &Emitter{
		queue:    make(chan *models.EventWire, cfg.QueueSize),
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: strings.TrimRight(collectorURL, "/") + ingestPath,
	}

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		safego.Go(func() {
			defer e.wg.Done()
			e.run()
		})
	}

	slog.Info("telemetry emitter started",
		"endpoint", e.endpoint, "queue_size", cfg.QueueSize, "workers", cfg.Workers)
	return e
}

// Enqueue hands an event to the worker pool without blocking. When the queue
// is full the event is dropped; losing a telemetry record is preferable to
// stalling the request that produced it.
func (e *Emitter) Enqueue(event *models.EventWire) {
	select {
	case e.queue <- event:
		telemetry.EmitterEventsQueuedTotal.Inc()
		telemetry.EmitterQueueDepth.Set(float64(len(e.queue)))
	default:
		telemetry.EmitterEventsDroppedTotal.Inc()
		slog.Warn("telemetry queue full, dropping event", "principal_id", event.PrincipalID)
	}
}

// Stop closes the queue and waits for the workers to drain it. Events already
// queued are still delivered; Enqueue must not be called after Stop.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.queue)
	})
	e.wg.Wait()
	slog.Info("telemetry emitter stopped")
}

// run is the worker loop: it drains the queue until the queue is closed.
func (e *Emitter) run() {
	for event := range e.queue {
		telemetry.EmitterQueueDepth.Set(float64(len(e.queue)))
		if err := e.deliver(event); err != nil {
			telemetry.EmitterDeliveryFailuresTotal.Inc()
			slog.Warn("telemetry delivery failed", "principal_id", event.PrincipalID, "error", err)
		}
	}
}

// deliver posts a single event to the collector. Any non-2xx response counts
// as a failure; the event is not retried.
func (e *Emitter) deliver(event *models.EventWire) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := e.client.Post(e.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}

// NewEvent assembles the wire form of a completed request. respTime is nil
// when the request failed before a response was produced.
func NewEvent(principalID, method, endpoint, path, clientIP string, at time.Time, statusCode int, respTime *float64) *models.EventWire {
	return &models.EventWire{
		PrincipalID: principalID,
		Request: models.RequestWire{
			Endpoint: endpoint,
			Method:   method,
			Path:     path,
			ClientIP: clientIP,
			Date:     models.EventDate(at.UTC()),
			Time:     models.EventTime(at.UTC()),
		},
		Response: models.ResponseWire{
			StatusCode: statusCode,
			RespTime:   respTime,
		},
	}
}
