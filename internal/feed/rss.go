package feed

import (
	"fmt"
	"time"

	"github.com/eduncan911/podcast"
	"podpurifier/internal/models"
)

// GenerateRSS renders a feed's cleaned episodes as an RSS 2.0 document with
// enclosures pointing at the locally stored artifacts. Episodes without an
// artifact path are skipped even if their status claims otherwise.
func GenerateRSS(f models.Feed, episodes []models.Episode, baseURL string) (string, error) {
	now := time.Now()
	description := fmt.Sprintf("Ad-free version of %s", f.Title)
	if f.Description != nil && *f.Description != "" {
		description = *f.Description
	}

	p := podcast.New(
		f.Title,
		fmt.Sprintf("%s/feed/%d", baseURL, f.ID),
		description,
		&f.CreatedAt, &now,
	)
	if f.Author != nil {
		// AddAuthor silently drops authors without an email address.
		p.IAuthor = *f.Author
	}
	if f.ImageURL != nil {
		p.AddImage(*f.ImageURL)
	}

	for _, episode := range episodes {
		if episode.LocalPath == nil {
			continue
		}

		pubDate := episode.UpdatedAt
		if episode.PublishedAt != nil {
			pubDate = *episode.PublishedAt
		}

		item := podcast.Item{
			Title:       episode.Title,
			Description: fmt.Sprintf("Ad-free version of %s", episode.Title),
			GUID:        episode.GUID,
			PubDate:     &pubDate,
		}
		item.AddEnclosure(fmt.Sprintf("%s/files/%s", baseURL, *episode.LocalPath), podcast.MP3, 0)
		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}
