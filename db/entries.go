package db

import (
	"context"
	"fmt"

	"foerderbande/models"
)

// UpsertFeedEntry writes a raw poller entry keyed by the link+title hash.
// Existing entries only get title, description and updated_at refreshed.
func (db *DB) UpsertFeedEntry(ctx context.Context, entry models.FeedEntry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = models.EntryID(entry.Link, entry.Title)
	}

	var inserted bool
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO feed_entries (id, feed_source, title, link, description, published_date, raw_content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			updated_at = CURRENT_TIMESTAMP
		RETURNING (xmax = 0) AS inserted`,
		entry.ID,
		entry.FeedSource,
		entry.Title,
		entry.Link,
		entry.Description,
		nullTime(entry.PublishedDate),
		entry.RawContent,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert feed entry: %w", err)
	}

	return inserted, nil
}
