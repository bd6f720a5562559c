package models

import "time"

// Feed is a subscribed podcast whose episodes get processed and
// re-published ad-free.
type Feed struct {
	ID          int       `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	RSSURL      string    `db:"rss_url" json:"rss_url"`
	Description *string   `db:"description" json:"description"`
	ImageURL    *string   `db:"image_url" json:"image_url"`
	Author      *string   `db:"author" json:"author"`
	AutoProcess bool      `db:"auto_process" json:"auto_process"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
