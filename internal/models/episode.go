package models

import "time"

// EpisodeStatus is the persisted processing state of an episode.
type EpisodeStatus string

const (
	StatusDiscovered EpisodeStatus = "discovered"
	StatusQueued     EpisodeStatus = "queued"
	StatusProcessing EpisodeStatus = "processing"
	StatusCleaned    EpisodeStatus = "cleaned"
	StatusFailed     EpisodeStatus = "failed"
	StatusIgnored    EpisodeStatus = "ignored"
)

// Valid reports whether s is one of the known status values.
func (s EpisodeStatus) Valid() bool {
	switch s {
	case StatusDiscovered, StatusQueued, StatusProcessing, StatusCleaned, StatusFailed, StatusIgnored:
		return true
	}
	return false
}

type Episode struct {
	ID          int           `db:"id" json:"id"`
	FeedID      int           `db:"feed_id" json:"feed_id"`
	GUID        string        `db:"guid" json:"guid"`
	Status      EpisodeStatus `db:"status" json:"status"`
	Title       string        `db:"title" json:"title"`
	AudioURL    string        `db:"audio_url" json:"audio_url"`
	LocalPath   *string       `db:"local_path" json:"local_path"`
	PublishedAt *time.Time    `db:"published_at" json:"published_at"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// EpisodeWithFeed is an episode joined with its feed title for listings.
type EpisodeWithFeed struct {
	Episode
	FeedTitle string `db:"feed_title" json:"feed_title"`
}
