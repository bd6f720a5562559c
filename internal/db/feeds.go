package db

import (
	"fmt"
	"log"

	"podpurifier/internal/models"
)

func CreateFeed(title, rssURL string, description, imageURL, author *string) (models.Feed, error) {
	query := `
		INSERT INTO feeds (title, rss_url, description, image_url, author)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`
	feed := models.Feed{}
	err := DB.Get(&feed, query, title, rssURL, description, imageURL, author)
	return feed, err
}

func GetFeedByID(id int) (models.Feed, error) {
	feed := models.Feed{}
	err := DB.Get(&feed, "SELECT * FROM feeds WHERE id = $1", id)
	return feed, err
}

func GetFeedByRSSURL(rssURL string) (models.Feed, error) {
	feed := models.Feed{}
	err := DB.Get(&feed, "SELECT * FROM feeds WHERE rss_url = $1", rssURL)
	return feed, err
}

func ListFeeds() ([]models.Feed, error) {
	feeds := []models.Feed{}
	err := DB.Select(&feeds, "SELECT * FROM feeds ORDER BY created_at DESC")
	if err != nil {
		log.Printf("Error listing feeds: %v", err)
		return nil, err
	}
	return feeds, nil
}

func UpdateFeedAutoProcess(id int, autoProcess bool) (models.Feed, error) {
	query := `
		UPDATE feeds
		SET auto_process = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING *
	`
	feed := models.Feed{}
	err := DB.Get(&feed, query, autoProcess, id)
	return feed, err
}

// DeleteFeed removes a feed and all of its episodes in one transaction.
// It returns the number of episodes that were deleted with the feed.
func DeleteFeed(id int) (int, error) {
	tx, err := DB.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM episodes WHERE feed_id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete episodes for feed %d: %w", id, err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.Exec("DELETE FROM feeds WHERE id = $1", id); err != nil {
		return 0, fmt.Errorf("failed to delete feed %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit feed deletion: %w", err)
	}
	return int(deleted), nil
}
