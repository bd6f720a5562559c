package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"
	"podpurifier/internal/db"
	"podpurifier/internal/feed"
	"podpurifier/internal/ingest"
)

// CreateFeed registers a new feed. The row is only created once the feed's
// channel metadata could actually be fetched and parsed.
func (h *Handlers) CreateFeed(w http.ResponseWriter, r *http.Request) {
	rssURL := r.URL.Query().Get("rss_url")
	if rssURL == "" {
		http.Error(w, "rss_url is required", http.StatusBadRequest)
		return
	}

	if _, err := db.GetFeedByRSSURL(rssURL); err == nil {
		http.Error(w, "Feed with this URL already exists", http.StatusBadRequest)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Printf("Error checking for existing feed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	meta, err := ingest.ExtractMetadata(rssURL)
	if err != nil {
		log.Printf("Error extracting metadata from %s: %v", rssURL, err)
		http.Error(w, "Could not parse RSS feed. Please check the URL.", http.StatusBadRequest)
		return
	}

	title := fmt.Sprintf("%s (Purified)", meta.Title)
	created, err := db.CreateFeed(title, rssURL, meta.Description, meta.ImageURL, meta.Author)
	if err != nil {
		log.Printf("Error creating feed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Best effort: a failed first ingestion leaves a valid empty feed.
	if episodes, err := ingest.IngestFeed(created.ID); err != nil {
		log.Printf("Failed to auto-ingest episodes for new feed %d: %v", created.ID, err)
	} else {
		log.Printf("Auto-ingested %d episodes for new feed %d", len(episodes), created.ID)
	}

	writeJSON(w, http.StatusOK, created)
}

func (h *Handlers) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := db.ListFeeds()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, feeds)
}

// UpdateFeedAutoProcess toggles the auto_process flag. The flag is stored
// but not consulted by ingestion.
func (h *Handlers) UpdateFeedAutoProcess(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid feed ID", http.StatusBadRequest)
		return
	}

	autoProcess, err := strconv.ParseBool(r.URL.Query().Get("auto_process"))
	if err != nil {
		http.Error(w, "auto_process must be true or false", http.StatusBadRequest)
		return
	}

	updated, err := db.UpdateFeedAutoProcess(id, autoProcess)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, fmt.Sprintf("Feed %d not found", id), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error updating feed %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid feed ID", http.StatusBadRequest)
		return
	}

	if _, err := db.GetFeedByID(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, fmt.Sprintf("Feed %d not found", id), http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	deleted, err := db.DeleteFeed(id)
	if err != nil {
		log.Printf("Error deleting feed %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("Deleted feed %d and %d episodes", id, deleted)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          fmt.Sprintf("Feed %d deleted", id),
		"deleted_episodes": deleted,
	})
}

func (h *Handlers) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid feed ID", http.StatusBadRequest)
		return
	}

	episodes, err := ingest.IngestFeed(id)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, fmt.Sprintf("Feed %d not found", id), http.StatusNotFound)
		case errors.Is(err, ingest.ErrFeedUnreachable), errors.Is(err, ingest.ErrFeedUnparsable):
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			log.Printf("Error ingesting feed %d: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      fmt.Sprintf("Ingestion complete for feed %d", id),
		"new_episodes": len(episodes),
		"episodes":     episodes,
	})
}

// GetRSSFeed publishes the cleaned episodes of a feed as RSS 2.0.
func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid feed ID", http.StatusBadRequest)
		return
	}

	feedRow, err := db.GetFeedByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, fmt.Sprintf("Feed %d not found", id), http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	episodes, err := db.GetCleanedEpisodesByFeedID(id)
	if err != nil {
		log.Printf("Error getting cleaned episodes for feed %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(feedRow, episodes, h.baseURL)
	if err != nil {
		log.Printf("Error generating RSS for feed %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}

func (h *Handlers) ServeAudioFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filePath := filepath.Join(h.audioStoragePath, vars["feed"], filepath.Base(vars["filename"]))
	http.ServeFile(w, r, filePath)
}
