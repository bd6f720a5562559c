// Package ingest reads a feed's RSS document and records any episodes not
// seen before. Ingestion only ever adds rows; episodes that disappear from
// the upstream document are kept, and episodes already known are left
// untouched even if their upstream metadata changed.
package ingest

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"podpurifier/internal/db"
	"podpurifier/internal/models"
)

var (
	// ErrFeedUnreachable means the feed document could not be fetched.
	ErrFeedUnreachable = errors.New("feed unreachable")
	// ErrFeedUnparsable means the document is not a valid syndication feed.
	ErrFeedUnparsable = errors.New("feed unparsable")
)

// HTTPClient is the client used for feed fetches. Swapped in tests.
var HTTPClient = &http.Client{Timeout: 30 * time.Second}

// Metadata is the channel-level information extracted when a feed is first
// registered.
type Metadata struct {
	Title       string
	Description *string
	ImageURL    *string
	Author      *string
}

func fetch(rssURL string) (*gofeed.Feed, error) {
	resp, err := HTTPClient.Get(rssURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFeedUnreachable, resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnparsable, err)
	}
	return parsed, nil
}

// ExtractMetadata fetches a feed document and returns its channel metadata.
// Callers must not create a feed row when this fails.
func ExtractMetadata(rssURL string) (Metadata, error) {
	parsed, err := fetch(rssURL)
	if err != nil {
		return Metadata{}, err
	}
	if parsed.Title == "" {
		return Metadata{}, fmt.Errorf("%w: feed has no title", ErrFeedUnparsable)
	}

	meta := Metadata{Title: parsed.Title}
	if parsed.Description != "" {
		meta.Description = &parsed.Description
	}
	if parsed.Image != nil && parsed.Image.URL != "" {
		meta.ImageURL = &parsed.Image.URL
	}
	if author := feedAuthor(parsed); author != "" {
		meta.Author = &author
	}
	return meta, nil
}

func feedAuthor(parsed *gofeed.Feed) string {
	if parsed.ITunesExt != nil && parsed.ITunesExt.Author != "" {
		return parsed.ITunesExt.Author
	}
	if len(parsed.Authors) > 0 && parsed.Authors[0] != nil {
		return parsed.Authors[0].Name
	}
	return ""
}

// IngestFeed fetches the feed's document and creates a DISCOVERED episode
// for every item whose guid is not yet known under this feed. It returns
// only the newly created episodes; re-ingesting an unchanged document
// returns an empty slice.
func IngestFeed(feedID int) ([]models.Episode, error) {
	feed, err := db.GetFeedByID(feedID)
	if err != nil {
		return nil, err
	}

	parsed, err := fetch(feed.RSSURL)
	if err != nil {
		return nil, err
	}

	created := []models.Episode{}
	for _, item := range parsed.Items {
		audioURL := enclosureURL(item)
		if audioURL == "" {
			// Not an audio item; nothing for the pipeline to do with it.
			continue
		}
		guid := itemGUID(item, audioURL)

		_, err := db.GetEpisodeByGUID(feed.ID, guid)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("Error looking up episode %q for feed %d: %v", guid, feed.ID, err)
			continue
		}

		episode, err := db.CreateEpisode(feed.ID, guid, item.Title, audioURL, item.PublishedParsed)
		if err != nil {
			log.Printf("Error creating episode %q for feed %d: %v", guid, feed.ID, err)
			continue
		}
		created = append(created, episode)
	}

	log.Printf("Ingested feed %d: %d new episodes", feed.ID, len(created))
	return created, nil
}

func enclosureURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// itemGUID prefers the document's own guid and falls back to a hash of
// title and audio link for documents that omit one.
func itemGUID(item *gofeed.Item, audioURL string) string {
	if item.GUID != "" {
		return item.GUID
	}
	sum := sha1.Sum([]byte(item.Title + "|" + audioURL))
	return hex.EncodeToString(sum[:])
}
