// Package feeds provides the RSS output of funding calls and the configured output feeds
package feeds

import (
	"context"

	"foerderbande/config"
	"foerderbande/models"
)

// DefaultFeedID is the feed that contains every funding call
const DefaultFeedID = config.DefaultFeedID

// CallQuerier runs builder generated funding call queries
type CallQuerier interface {
	QueryFundingCalls(ctx context.Context, query string, args []interface{}) ([]models.FundingCall, error)
}

// FeedMap maps feed IDs to their Feed instances
type FeedMap map[string]*Feed

// Feed represents a runtime feed instance
type Feed struct {
	// Metadata
	ID          string
	Title       string
	Description string
	Limit       int

	builder *FeedQueryBuilder
}
