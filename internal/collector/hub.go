// Package collector implements the aggregation service: the ingest endpoint
// the gateway's emitter posts to, the query endpoints over the recorded
// history and counters, and the live counter stream.
package collector

import (
	"sync"

	"github.com/medgate/medgate/internal/db/models"
	"github.com/medgate/medgate/internal/telemetry"
)

// subscriberBuffer is the per-subscriber notification buffer. When a
// subscriber falls behind, the oldest pending snapshot is evicted in favor
// of the newest; counters are monotonic, so the latest snapshot subsumes
// everything it displaced.
const subscriberBuffer = 16

// subscriber is one open counter stream.
type subscriber struct {
	principalID string
	ch          chan *models.CounterState
}

// Hub fans counter snapshots out to stream subscribers. Registration and
// notification are independent of ingest: a slow or absent subscriber never
// delays recording an event.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers interest in a principal's counter updates. The returned
// channel receives snapshots until cancel is called; cancel is idempotent and
// must be called when the consumer goes away.
func (h *Hub) Subscribe(principalID string) (<-chan *models.CounterState, func()) {
	sub := &subscriber{
		principalID: principalID,
		ch:          make(chan *models.CounterState, subscriberBuffer),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	telemetry.CollectorStreamSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			telemetry.CollectorStreamSubscribers.Dec()
		})
	}
	return sub.ch, cancel
}

// Notify pushes a counter snapshot to every subscriber of its principal
// without blocking. A full buffer drops the oldest pending snapshot first.
func (h *Hub) Notify(state *models.CounterState) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.principalID != state.PrincipalID {
			continue
		}
		select {
		case sub.ch <- state:
		default:
			select {
			case <-sub.ch:
				telemetry.CollectorStreamDropsTotal.Inc()
			default:
			}
			select {
			case sub.ch <- state:
			default:
			}
		}
	}
}

// HasSubscribers reports whether any stream is open for the principal, so the
// ingest path can skip the counter re-read when nobody is listening.
func (h *Hub) HasSubscribers(principalID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.principalID == principalID {
			return true
		}
	}
	return false
}
