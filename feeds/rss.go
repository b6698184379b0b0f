package feeds

import (
	"encoding/xml"
	"fmt"
	"time"

	"foerderbande/config"
	"foerderbande/models"

	"github.com/gorilla/feeds"
)

// ChannelInfo is the channel metadata of a generated RSS document
type ChannelInfo struct {
	Title       string
	Link        string
	Description string
	Language    string
	Generator   string
}

// ChannelFromConfig returns the channel metadata of the main funding call feed
func ChannelFromConfig(cfg config.RSSConfig) ChannelInfo {
	return ChannelInfo{
		Title:       cfg.Title,
		Link:        cfg.Link,
		Description: cfg.Description,
		Language:    cfg.Language,
		Generator:   cfg.Generator,
	}
}

// RenderRSS renders the funding calls as an RSS 2.0 document
func RenderRSS(channel ChannelInfo, calls []models.FundingCall, now time.Time) (string, error) {
	now = now.UTC()

	feed := &feeds.Feed{
		Title:       channel.Title,
		Link:        &feeds.Link{Href: channel.Link, Rel: "alternate"},
		Description: channel.Description,
		Created:     now,
		Updated:     now,
		Items:       make([]*feeds.Item, 0, len(calls)),
	}

	for _, call := range calls {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          call.URL,
			Title:       call.Title,
			Link:        &feeds.Link{Href: call.URL},
			Description: EnhancedDescription(call),
			Created:     call.CreatedAt.UTC(),
		})
	}

	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	rss.Language = channel.Language
	rss.Generator = channel.Generator
	rss.LastBuildDate = now.Format(time.RFC1123Z)

	items := make([]*rssItem, len(rss.Items))
	for i, item := range rss.Items {
		items[i] = &rssItem{RssItem: item, Categories: categories(calls[i])}
	}

	out, err := feeds.ToXML(&rssFeed{Channel: &rssChannel{RssFeed: rss, Items: items}})
	if err != nil {
		return "", fmt.Errorf("render rss: %w", err)
	}
	return out, nil
}

// rssItem replaces the single category of feeds.RssItem with a list
type rssItem struct {
	*feeds.RssItem
	Categories []string `xml:"category"`
}

type rssChannel struct {
	*feeds.RssFeed
	Items []*rssItem `xml:"item"`
}

type rssFeed struct {
	XMLName          xml.Name    `xml:"rss"`
	Version          string      `xml:"version,attr"`
	ContentNamespace string      `xml:"xmlns:content,attr"`
	Channel          *rssChannel `xml:"channel"`
}

func (r *rssFeed) FeedXml() interface{} {
	r.Version = "2.0"
	r.ContentNamespace = "http://purl.org/rss/1.0/modules/content/"
	return r
}

// categories lists the source and, when known, the funding body of a call
func categories(call models.FundingCall) []string {
	out := []string{call.Source}
	if body, ok := call.ExtraData["funding_body"].(string); ok && body != "" {
		out = append(out, body)
	}
	return out
}
