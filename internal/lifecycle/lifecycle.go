// Package lifecycle owns the episode status state machine. Every status
// write in the system goes through here; handlers and workers never touch
// the status column directly.
package lifecycle

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"podpurifier/internal/db"
	"podpurifier/internal/models"
)

// ErrIllegalTransition is returned when the requested transition is not in
// the legal transition table for the episode's current status.
var ErrIllegalTransition = errors.New("illegal status transition")

// sources maps a target status to the statuses it may be reached from.
var sources = map[models.EpisodeStatus][]models.EpisodeStatus{
	models.StatusQueued:     {models.StatusDiscovered, models.StatusFailed},
	models.StatusIgnored:    {models.StatusDiscovered, models.StatusFailed},
	models.StatusDiscovered: {models.StatusIgnored},
	models.StatusProcessing: {models.StatusQueued},
	models.StatusCleaned:    {models.StatusQueued, models.StatusProcessing},
	models.StatusFailed:     {models.StatusQueued, models.StatusProcessing},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to models.EpisodeStatus) bool {
	for _, s := range sources[to] {
		if s == from {
			return true
		}
	}
	return false
}

func sourceList(to models.EpisodeStatus) []string {
	list := make([]string, 0, len(sources[to]))
	for _, s := range sources[to] {
		list = append(list, string(s))
	}
	return list
}

// Transition moves one episode to the target status. The update carries a
// current-status guard, so a concurrent or duplicate delivery of the same
// trigger matches zero rows instead of re-applying the transition.
func Transition(episodeID int, to models.EpisodeStatus) (models.Episode, error) {
	query := `
		UPDATE episodes
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
		RETURNING *
	`
	episode := models.Episode{}
	err := db.DB.Get(&episode, query, to, episodeID, pq.Array(sourceList(to)))
	if errors.Is(err, sql.ErrNoRows) {
		return rejected(episodeID, to)
	}
	return episode, err
}

// Complete sets the artifact path together with the cleaned status in a
// single statement, so local_path is never observable without it.
func Complete(episodeID int, localPath string) (models.Episode, error) {
	query := `
		UPDATE episodes
		SET status = $1, local_path = $2, updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
		RETURNING *
	`
	episode := models.Episode{}
	err := db.DB.Get(&episode, query, models.StatusCleaned, localPath, episodeID, pq.Array(sourceList(models.StatusCleaned)))
	if errors.Is(err, sql.ErrNoRows) {
		return rejected(episodeID, models.StatusCleaned)
	}
	return episode, err
}

// rejected figures out why the guarded update matched nothing: either the
// episode does not exist (sql.ErrNoRows) or its current status makes the
// transition illegal.
func rejected(episodeID int, to models.EpisodeStatus) (models.Episode, error) {
	episode, err := db.GetEpisodeByID(episodeID)
	if err != nil {
		return models.Episode{}, err
	}
	return episode, fmt.Errorf("%w: episode %d is %s, cannot become %s", ErrIllegalTransition, episodeID, episode.Status, to)
}
