// Package poller fetches the active sources and stores their items as feed entries and funding calls
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"foerderbande/models"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Config holds configuration for polling
type Config struct {
	Interval  time.Duration
	Workers   int
	QueueSize int
	Timeout   time.Duration
	UserAgent string

	RequestsPerSecond float64
	BurstCapacity     int

	MaxRetries           uint64
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32

	DetectLanguage      bool
	Languages           []string
	ConfidenceThreshold float64
}

// DefaultConfig returns the configuration used when no flags are given
func DefaultConfig() Config {
	return Config{
		Interval:                30 * time.Minute,
		Workers:                 4,
		QueueSize:               100,
		Timeout:                 30 * time.Second,
		UserAgent:               "foerderbande/0.1 (+https://github.com/foerderbande)",
		RequestsPerSecond:       2.0,
		BurstCapacity:           5,
		MaxRetries:              3,
		RetryInitialInterval:    500 * time.Millisecond,
		RetryMaxInterval:        10 * time.Second,
		BreakerMaxRequests:      3,
		BreakerInterval:         60 * time.Second,
		BreakerTimeout:          5 * time.Minute,
		BreakerFailureThreshold: 3,
		Languages:               []string{"de", "en"},
		ConfidenceThreshold:     0.5,
	}
}

// Store is the part of the database the poller writes to
type Store interface {
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	MarkSourcePolled(ctx context.Context, id int64) error
	MarkSourceFailed(ctx context.Context, id int64, reason string) error
	UpsertFeedEntry(ctx context.Context, entry models.FeedEntry) (bool, error)
	UpsertFundingCall(ctx context.Context, call models.FundingCall) (models.FundingCall, bool, error)
}

type Poller struct {
	store     Store
	config    Config
	fetchers  map[models.SourceType]Fetcher
	breakers  *breakers
	processor *EntryProcessor
	events    chan interface{}
}

// New creates a poller. Events (CreateCallEvent, UpdateCallEvent and
// PollStatisticsEvent) are sent to events when it is not nil.
func New(store Store, seen SeenCache, config Config, events chan interface{}) *Poller {
	transport := NewRateLimitedTransport(config.RequestsPerSecond, config.BurstCapacity)

	return &Poller{
		store:  store,
		config: config,
		fetchers: map[models.SourceType]Fetcher{
			models.SourceTypeRSS:     NewRSSFetcher(transport, config.UserAgent),
			models.SourceTypeAPI:     NewAPIFetcher(transport, config.UserAgent),
			models.SourceTypeWebsite: NewWebsiteFetcher(transport, config.UserAgent, config.Timeout),
		},
		breakers:  newBreakers(config),
		processor: NewEntryProcessor(store, seen, config),
		events:    events,
	}
}

// RegisterFetcher replaces the fetcher used for a source type
func (p *Poller) RegisterFetcher(sourceType models.SourceType, fetcher Fetcher) {
	p.fetchers[sourceType] = fetcher
}

// BreakerState returns the circuit breaker state of a source
func (p *Poller) BreakerState(source string) gobreaker.State {
	return p.breakers.state(source)
}

// Run polls immediately and then on every interval until the context is cancelled
func (p *Poller) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"interval": p.config.Interval,
		"workers":  p.config.Workers,
	}).Info("Starting poller")

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Info("Stopping poller")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fetches all active sources once and stores their items
func (p *Poller) PollOnce(ctx context.Context) (models.PollStats, error) {
	stats := models.PollStats{StartedAt: time.Now()}

	sources, err := p.store.ListActiveSources(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list active sources: %w", err)
	}
	stats.Sources = len(sources)

	var mu sync.Mutex
	pp := NewParallelProcessor(p.config.Workers, p.config.QueueSize, func(ctx context.Context, source models.Source) {
		result := p.pollSource(ctx, source)
		mu.Lock()
		defer mu.Unlock()
		stats.Failed += result.Failed
		stats.Fetched += result.Fetched
		stats.Inserted += result.Inserted
		stats.Updated += result.Updated
		stats.Skipped += result.Skipped
		stats.Duplicates += result.Duplicates
	})

	pp.start(ctx)
	for _, source := range sources {
		if !pp.submit(ctx, source) {
			break
		}
	}
	pp.wait()

	stats.Duration = time.Since(stats.StartedAt)
	pollRuns.Inc()
	pollDuration.Observe(stats.Duration.Seconds())

	log.WithFields(log.Fields{
		"sources":    stats.Sources,
		"failed":     stats.Failed,
		"fetched":    stats.Fetched,
		"inserted":   stats.Inserted,
		"updated":    stats.Updated,
		"skipped":    stats.Skipped,
		"duplicates": stats.Duplicates,
		"duration":   stats.Duration,
	}).Info("Poll finished")

	p.emit(ctx, models.PollStatisticsEvent{Stats: stats})

	return stats, nil
}

// pollSource fetches and processes one source, returning its share of the poll statistics
func (p *Poller) pollSource(ctx context.Context, source models.Source) models.PollStats {
	var stats models.PollStats

	fetcher, ok := p.fetchers[source.Type]
	if !ok {
		p.markFailed(ctx, source, fmt.Errorf("no fetcher for source type %q", source.Type))
		stats.Failed = 1
		return stats
	}

	start := time.Now()
	items, err := fetchWithRetry(ctx, p.breakers.get(source.Name), fetcher, source, p.config)
	fetchDuration.WithLabelValues(string(source.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		fetchErrors.WithLabelValues(source.Name).Inc()
		p.markFailed(ctx, source, err)
		stats.Failed = 1
		return stats
	}

	stats.Fetched = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			return stats
		}

		result, call, err := p.processor.Process(ctx, source, item)
		if err != nil {
			log.WithFields(log.Fields{
				"source": source.Name,
				"link":   item.Link,
			}).Errorf("Error processing item: %v", err)
		}
		processedItems.WithLabelValues(string(result)).Inc()

		switch result {
		case ResultInserted:
			stats.Inserted++
			p.emit(ctx, models.CreateCallEvent{Call: *call})
		case ResultUpdated:
			stats.Updated++
			p.emit(ctx, models.UpdateCallEvent{Call: *call})
		case ResultDuplicate:
			stats.Duplicates++
		default:
			stats.Skipped++
		}
	}

	if err := p.store.MarkSourcePolled(ctx, source.ID); err != nil {
		log.WithFields(log.Fields{
			"source": source.Name,
		}).Errorf("Failed to record poll: %v", err)
	}

	log.WithFields(log.Fields{
		"source":   source.Name,
		"fetched":  stats.Fetched,
		"inserted": stats.Inserted,
	}).Info("Processed source")

	return stats
}

func (p *Poller) markFailed(ctx context.Context, source models.Source, cause error) {
	log.WithFields(log.Fields{
		"source": source.Name,
		"url":    source.URL,
	}).Warnf("Failed to fetch source: %v", cause)

	if err := p.store.MarkSourceFailed(ctx, source.ID, cause.Error()); err != nil {
		log.WithFields(log.Fields{
			"source": source.Name,
		}).Errorf("Failed to record fetch failure: %v", err)
	}
}

func (p *Poller) emit(ctx context.Context, event interface{}) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- event:
	case <-ctx.Done():
	}
}
