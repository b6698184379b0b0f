package feeds_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"foerderbande/config"
	"foerderbande/feeds"
	"foerderbande/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	query string
	args  []interface{}
	calls []models.FundingCall
	err   error
}

func (f *fakeQuerier) QueryFundingCalls(_ context.Context, query string, args []interface{}) ([]models.FundingCall, error) {
	f.query = query
	f.args = args
	return f.calls, f.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Keywords = config.Keywords{
		"kultur": {"kultur*", "theater"},
		"firmen": {"unternehmen*"},
	}
	cfg.Feeds = []config.FeedConfig{
		{
			ID:    "kultur",
			Title: "Kulturförderung",
			Limit: 10,
			Filters: []config.FilterConfig{
				{Type: "keyword", Include: []string{"kultur"}, Exclude: []string{"firmen"}},
				{Type: "source", Sources: []string{"Fonds Soziokultur"}},
			},
			Scoring: []config.ScoringConfig{
				{Type: "deadline_urgency", Weight: 2},
				{Type: "keyword", Keywords: "kultur", Weight: 1},
			},
		},
	}
	return cfg
}

func TestInitializeFeeds(t *testing.T) {
	feedMap, err := feeds.InitializeFeeds(testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"all", "kultur"}, feedMap.IDs())
	assert.Equal(t, config.DefaultRSSLimit, feedMap["all"].Limit)
	assert.Equal(t, config.DefaultRSSTitle, feedMap["all"].Title)
	assert.Equal(t, 10, feedMap["kultur"].Limit)

	q := &fakeQuerier{}
	_, err = feedMap["kultur"].Calls(context.Background(), q, 0, 0)
	require.NoError(t, err)

	assert.Contains(t, q.query, "AS score")
	assert.Contains(t, q.query, "funding_calls.source = ANY(")
	assert.Contains(t, q.args, "kultur:* | theater")
	assert.Contains(t, q.args, "unternehmen:*")
}

func TestInitializeFeedsDefaultOnly(t *testing.T) {
	feedMap, err := feeds.InitializeFeeds(config.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, feedMap.IDs())
}

func TestInitializeFeedsUnknownFilter(t *testing.T) {
	cfg := config.Default()
	cfg.Feeds = []config.FeedConfig{{ID: "x", Filters: []config.FilterConfig{{Type: "language"}}}}

	_, err := feeds.InitializeFeeds(cfg)
	assert.Error(t, err)
}

func TestFeedRSSUsesFeedTitle(t *testing.T) {
	feedMap, err := feeds.InitializeFeeds(testConfig())
	require.NoError(t, err)

	q := &fakeQuerier{calls: []models.FundingCall{{
		ID:        1,
		Title:     "Theaterfonds",
		URL:       "https://example.org/theater",
		Source:    "Fonds Soziokultur",
		CreatedAt: time.Now(),
	}}}

	out, err := feedMap["kultur"].RSS(context.Background(), q, feeds.ChannelFromConfig(config.Default().RSS), time.Now())
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Kulturförderung</title>")
	assert.Contains(t, out, "<description>"+config.DefaultRSSDescription+"</description>")
	assert.Contains(t, out, "https://example.org/theater")
}

func TestFeedCallsError(t *testing.T) {
	feedMap, err := feeds.InitializeFeeds(config.Default())
	require.NoError(t, err)

	_, err = feedMap["all"].Calls(context.Background(), &fakeQuerier{err: errors.New("boom")}, 5, 0)
	assert.ErrorContains(t, err, "boom")
}

func TestGetPublishInfo(t *testing.T) {
	feedMap, err := feeds.InitializeFeeds(testConfig())
	require.NoError(t, err)

	infos := feeds.GetPublishInfo(feedMap, "rss")
	require.Len(t, infos, 2)
	assert.Equal(t, "rss/funding-calls.rss", infos[0].ObjectKey)
	assert.Equal(t, "rss/kultur.rss", infos[1].ObjectKey)
	assert.Equal(t, feeds.RSSContentType, infos[1].ContentType)
}
