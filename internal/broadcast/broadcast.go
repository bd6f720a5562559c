// Package broadcast fans progress events out to connected observers.
// Events are ephemeral: there is no backlog, and an observer that connects
// after an event was published never sees it.
package broadcast

import (
	"log"
	"sync"
)

// Event is one progress report, as relayed from the worker.
type Event struct {
	EpisodeID int    `json:"episode_id"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage"`
}

// Observer receives published events. A Send error drops the observer.
type Observer interface {
	Send(Event) error
}

// Hub is the observer registry. All methods are safe for concurrent use
// from multiple connection handlers.
type Hub struct {
	mu        sync.Mutex
	observers map[Observer]struct{}
}

func NewHub() *Hub {
	return &Hub{observers: make(map[Observer]struct{})}
}

// Subscribe registers an observer. Subscribing twice is a no-op.
func (h *Hub) Subscribe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers[o] = struct{}{}
}

// Unsubscribe removes an observer. Unknown observers are a no-op.
func (h *Hub) Unsubscribe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.observers, o)
}

// Len returns the number of currently subscribed observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Publish delivers the event to every subscribed observer, best effort.
// An observer whose Send fails is dropped from the registry; delivery to
// the others is unaffected and the publisher never sees an error.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for o := range h.observers {
		if err := o.Send(event); err != nil {
			log.Printf("Dropping observer after send error: %v", err)
			delete(h.observers, o)
		}
	}
}
