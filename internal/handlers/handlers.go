package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"podpurifier/internal/broadcast"
	"podpurifier/internal/dispatch"
)

type Handlers struct {
	dispatcher       *dispatch.Dispatcher
	hub              *broadcast.Hub
	audioStoragePath string
	baseURL          string
}

func New(dispatcher *dispatch.Dispatcher, hub *broadcast.Hub, audioStoragePath, baseURL string) *Handlers {
	return &Handlers{
		dispatcher:       dispatcher,
		hub:              hub,
		audioStoragePath: audioStoragePath,
		baseURL:          baseURL,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
