// Package events fans watcher notifications out to connected event-stream
// clients, so admin frontends can mirror the database live.
package events

import (
	"strings"
	"sync"

	"arena/internal/catalog"
	"arena/internal/codec"
	"arena/internal/metrics"
	"arena/internal/watcher"
)

// Message is one server-sent event. An empty Event means the default
// "message" type.
type Message struct {
	Event string
	Data  string
}

// submissionTables are excluded from the feed: clients don't cache those
// objects and judging traffic would drown everything else.
var submissionTables = map[string]struct{}{
	"submissions":        {},
	"files":              {},
	"tokens":             {},
	"submission_results": {},
	"evaluations":        {},
}

// Hub holds the set of connected clients. Slow clients are dropped rather
// than allowed to stall delivery.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Message]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Message]struct{})}
}

// Attach wires the hub to the watcher: every change to a non-submission
// entity becomes a "<kind> <entity> <ref>" message, and every reconnect a
// "reinit" event telling clients to reload from scratch.
func (h *Hub) Attach(w *watcher.Watcher, reg *catalog.Registry) error {
	if err := w.OnResync(func() {
		h.Broadcast(Message{Event: "reinit"})
	}); err != nil {
		return err
	}

	for _, desc := range reg.List() {
		if _, excluded := submissionTables[desc.Table]; excluded {
			continue
		}
		for _, kind := range []watcher.Kind{watcher.KindCreate, watcher.KindUpdate, watcher.KindDelete} {
			d, k := desc, kind
			err := w.Subscribe(func(key catalog.Key) {
				h.Broadcast(Message{
					Data: strings.Join([]string{string(k), d.Name, codec.FormatKey(key)}, " "),
				})
			}, kind, desc)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Register adds a client and returns its delivery channel.
func (h *Hub) Register() chan Message {
	ch := make(chan Message, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	metrics.EventStreamClients.Inc()
	return ch
}

// Unregister removes a client.
func (h *Hub) Unregister(ch chan Message) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
		metrics.EventStreamClients.Dec()
	}
	h.mu.Unlock()
}

// Broadcast delivers a message to every client, skipping any whose buffer is
// full.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}
