package feeds

import "path"

const RSSContentType = "application/rss+xml"

// PublishInfo contains the metadata needed for publishing a feed
type PublishInfo struct {
	ID          string
	Title       string
	ObjectKey   string
	ContentType string
}

// GetPublishInfo returns one PublishInfo per feed, the default feed stored as funding-calls.rss
func GetPublishInfo(feeds FeedMap, prefix string) []PublishInfo {
	infos := make([]PublishInfo, 0, len(feeds))
	for _, id := range feeds.IDs() {
		name := id + ".rss"
		if id == DefaultFeedID {
			name = "funding-calls.rss"
		}
		infos = append(infos, PublishInfo{
			ID:          id,
			Title:       feeds[id].Title,
			ObjectKey:   path.Join(prefix, name),
			ContentType: RSSContentType,
		})
	}
	return infos
}
