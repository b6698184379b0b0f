package poller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"foerderbande/models"

	"github.com/gocolly/colly"
)

const defaultSelector = "a[href]"

// WebsiteFetcher scrapes the links matching the source selector from an HTML page
type WebsiteFetcher struct {
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
}

func NewWebsiteFetcher(transport http.RoundTripper, userAgent string, timeout time.Duration) *WebsiteFetcher {
	return &WebsiteFetcher{
		transport: transport,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

func (f *WebsiteFetcher) Fetch(ctx context.Context, source models.Source) ([]models.FetchedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	selector := source.Selector
	if selector == "" {
		selector = defaultSelector
	}

	c := colly.NewCollector(colly.UserAgent(f.userAgent))
	c.WithTransport(&contextTransport{ctx: ctx, next: f.transport})
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var items []models.FetchedItem
	seen := map[string]bool{}

	c.OnHTML(selector, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		title := e.Text
		if href == "" {
			href = e.ChildAttr("a[href]", "href")
			title = e.ChildText("a[href]")
		}
		if href == "" {
			return
		}

		link := e.Request.AbsoluteURL(href)
		title = strings.Join(strings.Fields(title), " ")
		if link == "" || title == "" || seen[link] {
			return
		}
		seen[link] = true

		items = append(items, models.FetchedItem{
			Title: title,
			Link:  link,
			GUID:  link,
			Raw:   strings.TrimSpace(e.Text),
		})
	})

	var statusCode int
	c.OnError(func(r *colly.Response, err error) {
		statusCode = r.StatusCode
	})

	if err := c.Visit(source.URL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if statusCode >= 400 {
			return nil, &StatusError{URL: source.URL, StatusCode: statusCode}
		}
		return nil, err
	}

	return items, nil
}

// contextTransport binds the requests of a collector to the context of the fetch
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req.WithContext(t.ctx))
}
