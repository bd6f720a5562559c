package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"podpurifier/internal/broadcast"
	"podpurifier/internal/db"
	"podpurifier/internal/lifecycle"
	"podpurifier/internal/models"
)

const maxUploadBytes = 512 << 20

// UploadCleanedAudio is the callback resolver's success path: the worker
// posts the cleaned MP3 here once processing is done. The artifact is
// stored under a per-feed directory and the episode moves to CLEANED in
// the same operation that records the artifact path. Duplicate deliveries
// for an already-cleaned episode are a no-op echo of the stored path.
func (h *Handlers) UploadCleanedAudio(w http.ResponseWriter, r *http.Request) {
	episodeID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid episode ID", http.StatusBadRequest)
		return
	}

	episode, err := db.GetEpisodeByID(episodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, fmt.Sprintf("Episode %d not found", episodeID), http.StatusNotFound)
			return
		}
		log.Printf("Error loading episode %d: %v", episodeID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if episode.Status == models.StatusCleaned && episode.LocalPath != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":    "File already uploaded",
			"episode_id": episode.ID,
			"local_path": *episode.LocalPath,
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(header.Filename, ".mp3") || header.Header.Get("Content-Type") != "audio/mpeg" {
		http.Error(w, "Only MP3 files are accepted", http.StatusBadRequest)
		return
	}

	feedDir := filepath.Join(h.audioStoragePath, strconv.Itoa(episode.FeedID))
	if err := os.MkdirAll(feedDir, 0o755); err != nil {
		log.Printf("Failed to create storage directory for feed %d: %v", episode.FeedID, err)
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	safeName := fmt.Sprintf("%d_%s", episode.ID, strings.ReplaceAll(filepath.Base(header.Filename), "/", "_"))
	fullPath := filepath.Join(feedDir, safeName)

	if err := writeArtifact(fullPath, file); err != nil {
		log.Printf("Failed to save file for episode %d: %v", episode.ID, err)
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	relPath := filepath.ToSlash(filepath.Join(strconv.Itoa(episode.FeedID), safeName))
	updated, err := lifecycle.Complete(episode.ID, relPath)
	if err != nil {
		if errors.Is(err, lifecycle.ErrIllegalTransition) && updated.Status == models.StatusCleaned && updated.LocalPath != nil {
			// Lost a race with a duplicate delivery; its artifact stands.
			os.Remove(fullPath)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"message":    "File already uploaded",
				"episode_id": updated.ID,
				"local_path": *updated.LocalPath,
			})
			return
		}
		log.Printf("Failed to mark episode %d cleaned: %v", episode.ID, err)
		os.Remove(fullPath)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.hub.Publish(broadcast.Event{
		EpisodeID: updated.ID,
		Progress:  100,
		Stage:     "completed",
	})

	log.Printf("Uploaded cleaned audio for episode %d: %s", updated.ID, relPath)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "File uploaded successfully",
		"episode_id": updated.ID,
		"local_path": relPath,
	})
}

// writeArtifact streams the upload to disk, removing the partial file if
// the copy fails so a retry starts clean.
func writeArtifact(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}
