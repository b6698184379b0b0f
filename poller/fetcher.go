package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"foerderbande/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Fetcher loads the current items of a source
type Fetcher interface {
	Fetch(ctx context.Context, source models.Source) ([]models.FetchedItem, error)
}

// StatusError is returned when a source answers with a non success status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// ParseError is returned when a source body cannot be decoded
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// isPermanent reports errors that retrying will not fix: client errors other than 429 and undecodable bodies
func isPermanent(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return true
	}
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// RateLimitedTransport wraps an http.RoundTripper with rate limiting
type RateLimitedTransport struct {
	transport   http.RoundTripper
	rateLimiter *rate.Limiter
}

// RoundTrip implements the http.RoundTripper interface with rate limiting
func (r *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Wait for rate limiter permission
	if err := r.rateLimiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return r.transport.RoundTrip(req)
}

// NewRateLimitedTransport shares one limiter between all fetchers
func NewRateLimitedTransport(requestsPerSecond float64, burstCapacity int) *RateLimitedTransport {
	return &RateLimitedTransport{
		transport:   http.DefaultTransport,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstCapacity),
	}
}

// breakers keeps one circuit breaker per source
type breakers struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakers(config Config) *breakers {
	return &breakers{
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *breakers) get(source string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[source]; ok {
		return cb
	}

	threshold := b.config.BreakerFailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("source-%s", source),
		MaxRequests: b.config.BreakerMaxRequests,
		Interval:    b.config.BreakerInterval,
		Timeout:     b.config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	b.breakers[source] = cb
	return cb
}

func (b *breakers) state(source string) gobreaker.State {
	return b.get(source).State()
}

// fetchWithRetry runs the fetcher through the source's circuit breaker and
// retries transient failures with exponential backoff.
func fetchWithRetry(ctx context.Context, cb *gobreaker.CircuitBreaker, fetcher Fetcher, source models.Source, config Config) ([]models.FetchedItem, error) {
	var items []models.FetchedItem

	operation := func() error {
		result, err := cb.Execute(func() (interface{}, error) {
			fetchCtx, cancel := context.WithTimeout(ctx, config.Timeout)
			defer cancel()
			return fetcher.Fetch(fetchCtx, source)
		})
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		items, _ = result.([]models.FetchedItem)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.RetryInitialInterval
	b.MaxInterval = config.RetryMaxInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // Bounded by the retry count

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, config.MaxRetries), ctx))
	return items, err
}

// RSSFetcher reads RSS and Atom feeds
type RSSFetcher struct {
	client    *http.Client
	userAgent string
}

func NewRSSFetcher(transport http.RoundTripper, userAgent string) *RSSFetcher {
	return &RSSFetcher{
		client:    &http.Client{Transport: transport, Timeout: 30 * time.Second},
		userAgent: userAgent,
	}
}

func (f *RSSFetcher) Fetch(ctx context.Context, source models.Source) ([]models.FetchedItem, error) {
	fp := gofeed.NewParser()
	fp.Client = f.client
	fp.UserAgent = f.userAgent

	feed, err := fp.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &StatusError{URL: source.URL, StatusCode: httpErr.StatusCode}
		}
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, &ParseError{URL: source.URL, Err: err}
		}
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", source.URL, err)
	}

	items := make([]models.FetchedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, fromFeedItem(item))
	}
	return items, nil
}

func fromFeedItem(item *gofeed.Item) models.FetchedItem {
	fetched := models.FetchedItem{
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		GUID:        item.GUID,
		Categories:  item.Categories,
	}

	if fetched.Description == "" {
		fetched.Description = item.Content
	}
	if item.Author != nil {
		fetched.Author = item.Author.Name
	}

	switch {
	case item.PublishedParsed != nil:
		fetched.Published = item.PublishedParsed
	case item.UpdatedParsed != nil:
		fetched.Published = item.UpdatedParsed
	}

	if raw, err := json.Marshal(item); err == nil {
		fetched.Raw = string(raw)
	}

	return fetched
}
