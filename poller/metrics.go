package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foerderbande_poll_runs_total",
		Help: "The total number of poll runs over all active sources",
	})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foerderbande_poll_duration_seconds",
		Help:    "Duration of a poll run over all active sources",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // Start at 500ms, double each bucket, 10 buckets
	})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foerderbande_fetch_duration_seconds",
		Help:    "Duration of fetching a single source including retries",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // Start at 50ms, double each bucket, 10 buckets
	}, []string{"source_type"})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foerderbande_fetch_errors_total",
		Help: "The total number of failed source fetches",
	}, []string{"source"})

	processedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foerderbande_processed_items_total",
		Help: "Fetched items by processing result",
	}, []string{"result"})
)
