package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"podpurifier/internal/db"
	"podpurifier/internal/lifecycle"
	"podpurifier/internal/models"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type bulkEpisodeRequest struct {
	EpisodeIDs []int `json:"episode_ids"`
}

type paginatedEpisodes struct {
	Items      []models.EpisodeWithFeed `json:"items"`
	Total      int                      `json:"total"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}

func (h *Handlers) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.EpisodeFilter{Page: 1, PageSize: defaultPageSize}

	if v := q.Get("feed_id"); v != "" {
		feedID, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid feed_id", http.StatusBadRequest)
			return
		}
		filter.FeedID = &feedID
	}
	if v := q.Get("status"); v != "" {
		status := models.EpisodeStatus(v)
		if !status.Valid() {
			http.Error(w, fmt.Sprintf("Unknown status %q", v), http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}
	if v := q.Get("show_ignored"); v != "" {
		filter.ShowIgnored, _ = strconv.ParseBool(v)
	}
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if v := q.Get("page_size"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 && size <= maxPageSize {
			filter.PageSize = size
		}
	}

	episodes, total, err := db.ListEpisodes(filter)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, paginatedEpisodes{
		Items:      episodes,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	})
}

// QueueEpisodes queues episodes for processing and dispatches a work
// message per episode. Only discovered and failed episodes are eligible;
// the rest of the batch is skipped, not failed.
func (h *Handlers) QueueEpisodes(w http.ResponseWriter, r *http.Request) {
	var req bulkEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queued := 0
	dispatched := []map[string]interface{}{}
	for _, episodeID := range req.EpisodeIDs {
		episode, err := db.GetEpisodeByID(episodeID)
		if err != nil {
			log.Printf("Skipping episode %d: %v", episodeID, err)
			continue
		}
		if !lifecycle.CanTransition(episode.Status, models.StatusQueued) {
			continue
		}

		taskID, err := h.dispatcher.Dispatch(episode.ID, episode.AudioURL)
		if err != nil {
			log.Printf("Failed to dispatch episode %d: %v", episode.ID, err)
			continue
		}
		queued++
		dispatched = append(dispatched, map[string]interface{}{
			"episode_id": episode.ID,
			"task_id":    taskID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queued": queued,
		"tasks":  dispatched,
	})
}

func (h *Handlers) IgnoreEpisodes(w http.ResponseWriter, r *http.Request) {
	count, ok := h.bulkTransition(w, r, models.StatusIgnored)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ignored": count})
}

func (h *Handlers) UnignoreEpisodes(w http.ResponseWriter, r *http.Request) {
	count, ok := h.bulkTransition(w, r, models.StatusDiscovered)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": count})
}

func (h *Handlers) bulkTransition(w http.ResponseWriter, r *http.Request, to models.EpisodeStatus) (int, bool) {
	var req bulkEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return 0, false
	}

	count := 0
	for _, episodeID := range req.EpisodeIDs {
		if _, err := lifecycle.Transition(episodeID, to); err != nil {
			// Unknown or ineligible episodes are skipped, not failed.
			continue
		}
		count++
	}
	return count, true
}

// FailEpisode is the callback resolver's failure path: the worker reports
// here after exhausting its retries. Duplicate or stale reports for an
// episode already in a terminal state are a no-op.
func (h *Handlers) FailEpisode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid episode ID", http.StatusBadRequest)
		return
	}

	episode, err := lifecycle.Transition(id, models.StatusFailed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, fmt.Sprintf("Episode %d not found", id), http.StatusNotFound)
			return
		}
		if errors.Is(err, lifecycle.ErrIllegalTransition) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"episode_id": episode.ID,
				"status":     episode.Status,
			})
			return
		}
		log.Printf("Error failing episode %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("Episode %d marked failed by worker", id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"episode_id": episode.ID,
		"status":     episode.Status,
	})
}
