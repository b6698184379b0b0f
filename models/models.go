package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// FundingCall is a single funding opportunity as served by the API and the RSS feed
type FundingCall struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description *string        `json:"description"`
	URL         string         `json:"url"`
	Source      string         `json:"source"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExtraData   map[string]any `json:"extra_data"`
}

// FeedEntry is the raw record written by the poller for every fetched item
type FeedEntry struct {
	ID            string     `json:"id"`
	FeedSource    string     `json:"feed_source"`
	Title         string     `json:"title"`
	Link          string     `json:"link"`
	Description   string     `json:"description"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	RawContent    string     `json:"raw_content,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EntryID returns the hex encoded MD5 of link+title, used as feed entry primary key
func EntryID(link, title string) string {
	sum := md5.Sum([]byte(link + title))
	return hex.EncodeToString(sum[:])
}

// FetchedItem is what a fetcher returns for one item of a source
type FetchedItem struct {
	Title       string
	Link        string
	Description string
	GUID        string
	Author      string
	Categories  []string
	Published   *time.Time
	Extra       map[string]any
	Raw         string
}

// CallQuery holds the optional filters for listing funding calls
type CallQuery struct {
	Limit  int
	Cursor int64
	Source string
	Search string
}

// CreateCallEvent fired when the poller inserts a new funding call
type CreateCallEvent struct {
	Call FundingCall
}

// UpdateCallEvent fired when the poller refreshes an existing funding call
type UpdateCallEvent struct {
	Call FundingCall
}

// PollStats summarizes one poll run over all active sources
type PollStats struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Sources    int           `json:"sources"`
	Failed     int           `json:"failed"`
	Fetched    int           `json:"fetched"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Duplicates int           `json:"duplicates"`
}

// PollStatisticsEvent fired after every poll run
type PollStatisticsEvent struct {
	Stats PollStats
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDeadline parses ISO 8601 style deadlines as they appear in source metadata
func ParseDeadline(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
