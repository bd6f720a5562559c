package handlers

import (
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"podpurifier/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are anonymous; the API carries no credentials to check.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsObserver adapts a WebSocket connection to the broadcast.Observer
// interface. Writes are serialized; gorilla connections allow only one
// concurrent writer.
type wsObserver struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (o *wsObserver) Send(event broadcast.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteJSON(event)
}

// WSProgress upgrades the connection and subscribes it to progress events
// until the client goes away. There is no backlog replay.
func (h *Handlers) WSProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	observer := &wsObserver{conn: conn}
	h.hub.Subscribe(observer)
	defer func() {
		h.hub.Unsubscribe(observer)
		conn.Close()
	}()

	// Drain the connection; the read only returns when the client
	// disconnects or the connection breaks.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// PostProgress relays a worker's progress report to all connected
// observers. Progress is advisory telemetry only: it never changes the
// persisted episode status.
func (h *Handlers) PostProgress(w http.ResponseWriter, r *http.Request) {
	episodeID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid episode ID", http.StatusBadRequest)
		return
	}

	progress, err := strconv.Atoi(r.URL.Query().Get("progress"))
	if err != nil || progress < 0 || progress > 100 {
		http.Error(w, "progress must be an integer between 0 and 100", http.StatusBadRequest)
		return
	}

	stage := r.URL.Query().Get("stage")
	if stage == "" {
		stage = "processing"
	}

	h.hub.Publish(broadcast.Event{
		EpisodeID: episodeID,
		Progress:  progress,
		Stage:     stage,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
