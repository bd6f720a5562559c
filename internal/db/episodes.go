package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"podpurifier/internal/models"
)

func CreateEpisode(feedID int, guid, title, audioURL string, publishedAt *time.Time) (models.Episode, error) {
	query := `
		INSERT INTO episodes (feed_id, guid, title, audio_url, published_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`
	episode := models.Episode{}
	err := DB.Get(&episode, query, feedID, guid, title, audioURL, publishedAt)
	return episode, err
}

func GetEpisodeByID(id int) (models.Episode, error) {
	episode := models.Episode{}
	err := DB.Get(&episode, "SELECT * FROM episodes WHERE id = $1", id)
	return episode, err
}

func GetEpisodeByGUID(feedID int, guid string) (models.Episode, error) {
	episode := models.Episode{}
	err := DB.Get(&episode, "SELECT * FROM episodes WHERE feed_id = $1 AND guid = $2", feedID, guid)
	return episode, err
}

func GetCleanedEpisodesByFeedID(feedID int) ([]models.Episode, error) {
	query := `
		SELECT * FROM episodes
		WHERE feed_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
	episodes := []models.Episode{}
	err := DB.Select(&episodes, query, feedID, models.StatusCleaned)
	return episodes, err
}

// EpisodeFilter narrows and paginates episode listings. Ignored episodes
// are hidden unless ShowIgnored is set or an explicit status is requested.
type EpisodeFilter struct {
	FeedID      *int
	Status      *models.EpisodeStatus
	ShowIgnored bool
	Page        int
	PageSize    int
}

func ListEpisodes(f EpisodeFilter) ([]models.EpisodeWithFeed, int, error) {
	where := []string{}
	args := []interface{}{}

	if f.FeedID != nil {
		args = append(args, *f.FeedID)
		where = append(where, fmt.Sprintf("e.feed_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("e.status = $%d", len(args)))
	} else if !f.ShowIgnored {
		args = append(args, models.StatusIgnored)
		where = append(where, fmt.Sprintf("e.status != $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM episodes e" + clause
	if err := DB.Get(&total, countQuery, args...); err != nil {
		log.Printf("Error counting episodes: %v", err)
		return nil, 0, err
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	query := fmt.Sprintf(`
		SELECT e.*, f.title AS feed_title
		FROM episodes e
		JOIN feeds f ON f.id = e.feed_id
		%s
		ORDER BY e.published_at DESC NULLS LAST, e.created_at DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)-1, len(args))

	episodes := []models.EpisodeWithFeed{}
	if err := DB.Select(&episodes, query, args...); err != nil {
		log.Printf("Error listing episodes: %v", err)
		return nil, 0, err
	}
	return episodes, total, nil
}
