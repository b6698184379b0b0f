package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"foerderbande/models"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"
)

// APIFetcher reads JSON APIs returning an array of items or an object with an items array
type APIFetcher struct {
	client *resty.Client
}

func NewAPIFetcher(transport http.RoundTripper, userAgent string) *APIFetcher {
	return &APIFetcher{
		client: resty.New().
			SetTransport(transport).
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", userAgent),
	}
}

// Known keys of an API item, first match wins
var (
	apiTitleKeys       = []string{"title", "name"}
	apiLinkKeys        = []string{"url", "link", "href"}
	apiDescriptionKeys = []string{"description", "summary", "content"}
	apiGUIDKeys        = []string{"id", "guid"}
	apiPublishedKeys   = []string{"published", "published_at", "date", "created_at"}
)

func (f *APIFetcher) Fetch(ctx context.Context, source models.Source) ([]models.FetchedItem, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(source.URL)

	if err != nil {
		return nil, fmt.Errorf("failed to fetch api from %s: %w", source.URL, err)
	}

	if resp.IsError() {
		return nil, &StatusError{URL: source.URL, StatusCode: resp.StatusCode()}
	}

	records, err := decodeAPIBody(resp.Body())
	if err != nil {
		return nil, &ParseError{URL: source.URL, Err: err}
	}

	items := make([]models.FetchedItem, 0, len(records))
	for _, record := range records {
		items = append(items, fromAPIRecord(record))
	}
	return items, nil
}

func decodeAPIBody(body []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("expected an array or an object with items: %w", err)
	}
	if wrapped.Items == nil {
		return nil, fmt.Errorf("expected an array or an object with items")
	}
	return wrapped.Items, nil
}

// fromAPIRecord maps the known keys and keeps every other key as metadata
func fromAPIRecord(record map[string]any) models.FetchedItem {
	used := map[string]bool{}
	pick := func(keys []string) string {
		for _, key := range keys {
			if v, ok := record[key]; ok && v != nil {
				used[key] = true
				if s, ok := v.(string); ok {
					return s
				}
				return fmt.Sprint(v)
			}
		}
		return ""
	}

	item := models.FetchedItem{
		Title:       pick(apiTitleKeys),
		Link:        pick(apiLinkKeys),
		Description: pick(apiDescriptionKeys),
		GUID:        pick(apiGUIDKeys),
		Author:      pick([]string{"author"}),
	}

	if published := pick(apiPublishedKeys); published != "" {
		if t, ok := models.ParseDeadline(published); ok {
			item.Published = &t
		}
	}

	if categories, ok := record["categories"].([]any); ok {
		used["categories"] = true
		item.Categories = lo.FilterMap(categories, func(c any, _ int) (string, bool) {
			s, ok := c.(string)
			return strings.TrimSpace(s), ok && strings.TrimSpace(s) != ""
		})
	}

	item.Extra = lo.OmitBy(record, func(key string, _ any) bool {
		return used[key]
	})

	if raw, err := json.Marshal(record); err == nil {
		item.Raw = string(raw)
	}

	return item
}
