package emitter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/medgate/medgate/internal/config"
	"github.com/medgate/medgate/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testEmitterConfig() config.EmitterConfig {
	return config.EmitterConfig{
		QueueSize: 16,
		Workers:   2,
		Timeout:   2 * time.Second,
	}
}

func sampleWireEvent(principalID string) *models.EventWire {
	respTime := 0.05
	return &models.EventWire{
		PrincipalID: principalID,
		Request: models.RequestWire{
			Endpoint: "/api/v1/patients",
			Method:   "GET",
			Path:     "/api/v1/patients",
			ClientIP: "10.1.2.3",
			Date:     "2026-08-29",
			Time:     "14:03:11",
		},
		Response: models.ResponseWire{StatusCode: 200, RespTime: &respTime},
	}
}

// collectingServer records every event POSTed to the ingest path.
type collectingServer struct {
	mu     sync.Mutex
	events []models.EventWire
	srv    *httptest.Server
}

func newCollectingServer(t *testing.T) *collectingServer {
	t.Helper()
	cs := &collectingServer{}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ingestPath {
			t.Errorf("unexpected path %q, want %q", r.URL.Path, ingestPath)
		}
		var event models.EventWire
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decode event: %v", err)
		}
		cs.mu.Lock()
		cs.events = append(cs.events, event)
		cs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *collectingServer) received() []models.EventWire {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]models.EventWire, len(cs.events))
	copy(out, cs.events)
	return out
}

// ---------------------------------------------------------------------------
// Delivery
// ---------------------------------------------------------------------------

func TestEmitter_DeliversQueuedEvents(t *testing.T) {
	cs := newCollectingServer(t)

	em := New(testEmitterConfig(), cs.srv.URL)
	em.Enqueue(sampleWireEvent("principal-1"))
	em.Enqueue(sampleWireEvent("principal-2"))
	em.Stop()

	events := cs.received()
	if len(events) != 2 {
		t.Fatalf("collector received %d events, want 2", len(events))
	}
	seen := map[string]bool{}
	for _, e := range events {
		seen[e.PrincipalID] = true
		if e.Request.Method != "GET" || e.Response.StatusCode != 200 {
			t.Errorf("event arrived mangled: %+v", e)
		}
	}
	if !seen["principal-1"] || !seen["principal-2"] {
		t.Errorf("missing events, got %v", seen)
	}
}

func TestEmitter_StopDrainsQueue(t *testing.T) {
	cs := newCollectingServer(t)

	em := New(testEmitterConfig(), cs.srv.URL)
	for i := 0; i < 10; i++ {
		em.Enqueue(sampleWireEvent("principal-1"))
	}
	em.Stop()

	if got := len(cs.received()); got != 10 {
		t.Errorf("collector received %d events after Stop, want 10", got)
	}
}

// ---------------------------------------------------------------------------
// Failure isolation
// ---------------------------------------------------------------------------

func TestEmitter_DeliveryFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	em := New(testEmitterConfig(), srv.URL)
	em.Enqueue(sampleWireEvent("principal-1"))
	// Stop returning means the worker moved past the failed delivery instead
	// of blocking or panicking.
	em.Stop()
}

func TestEmitter_UnreachableCollectorDoesNotBlockEnqueue(t *testing.T) {
	cfg := testEmitterConfig()
	cfg.Timeout = 100 * time.Millisecond
	em := New(cfg, "http://127.0.0.1:1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			em.Enqueue(sampleWireEvent("principal-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked with an unreachable collector")
	}
	em.Stop()
}

// ---------------------------------------------------------------------------
// Event assembly
// ---------------------------------------------------------------------------

func TestNewEvent_Shape(t *testing.T) {
	at := time.Date(2026, 8, 29, 14, 3, 11, 0, time.UTC)
	respTime := 0.042

	event := NewEvent("principal-1", "POST", "/api/v1/patients", "/api/v1/patients", "10.1.2.3", at, 201, &respTime)

	if event.Request.Date != "2026-08-29" || event.Request.Time != "14:03:11" {
		t.Errorf("timestamp = %s %s, want 2026-08-29 14:03:11", event.Request.Date, event.Request.Time)
	}
	if event.Response.RespTime == nil || *event.Response.RespTime != 0.042 {
		t.Errorf("resp time = %v, want 0.042", event.Response.RespTime)
	}
}

func TestNewEvent_NoResponseTime(t *testing.T) {
	event := NewEvent("principal-1", "GET", "/api/v1/patients", "/api/v1/patients", "10.1.2.3", time.Now(), 500, nil)

	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	response := decoded["response"].(map[string]any)
	if _, present := response["response_time"]; present {
		t.Error("response_time should be omitted when the request produced no response")
	}
}
