// Package maintenance holds the coordinator-side consumer for scheduled
// housekeeping tasks. It runs inside cmd/server, never on the remote
// worker, so the worker stays cut off from the state store.
package maintenance

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"podpurifier/internal/db"
	"podpurifier/internal/ingest"
)

// HandleRefreshAllFeedsTask re-ingests every registered feed. One broken
// feed never fails the sweep; ingestion only discovers, it queues nothing.
func HandleRefreshAllFeedsTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Refreshing all feeds...")

	feeds, err := db.ListFeeds()
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	for _, feed := range feeds {
		episodes, err := ingest.IngestFeed(feed.ID)
		if err != nil {
			log.Printf("Failed to refresh feed %d (%s): %v", feed.ID, feed.RSSURL, err)
			continue
		}
		if len(episodes) > 0 {
			log.Printf("Feed %d: discovered %d new episodes", feed.ID, len(episodes))
		}
	}

	log.Println("Finished refreshing all feeds.")
	return nil
}
