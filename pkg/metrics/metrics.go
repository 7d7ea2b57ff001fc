// Package metrics declares the Prometheus collectors for the crawl, index,
// and search subsystems, plus the scrape endpoint handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector so services can share one instance through
// plain struct injection.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	PagesFetchedTotal   prometheus.Counter
	FetchErrorsTotal    *prometheus.CounterVec
	PagesSkippedTotal   *prometheus.CounterVec
	LinksEnqueuedTotal  prometheus.Counter
	FrontierQueueLength prometheus.Gauge
	RateLimitWaitTotal  prometheus.Counter

	DocsIndexedTotal   prometheus.Counter
	DocsDroppedTotal   prometheus.Counter
	IndexLatency       prometheus.Histogram
	CheckpointsTotal   *prometheus.CounterVec
	VocabularySize     prometheus.Gauge
	IndexedDocuments   prometheus.Gauge
	ArchiveWritesTotal *prometheus.CounterVec

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	FeedbackJumpsTotal prometheus.Counter
}

// New builds the collector set against the default registerer. Registration
// happens at construction, so calling New twice in one process panics;
// ordinary code should go through Default.
func New() *Metrics {
	auto := promauto.With(prometheus.DefaultRegisterer)
	return &Metrics{
		HTTPRequestsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: auto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being processed.",
		}),

		PagesFetchedTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_pages_fetched_total",
			Help: "Pages fetched and delivered to the indexer.",
		}),
		FetchErrorsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_fetch_errors_total",
			Help: "Fetch failures by reason (http, parse).",
		}, []string{"reason"}),
		PagesSkippedTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_pages_skipped_total",
			Help: "Pages skipped by reason (bad_url, domain, not_html).",
		}, []string{"reason"}),
		LinksEnqueuedTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_links_enqueued_total",
			Help: "Links discovered and enqueued on the frontier.",
		}),
		FrontierQueueLength: auto.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_frontier_queue_length",
			Help: "URLs currently queued on the frontier.",
		}),
		RateLimitWaitTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_rate_limit_waits_total",
			Help: "Times a worker slept to honor the per-domain gap.",
		}),

		DocsIndexedTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "index_docs_total",
			Help: "Documents added to the engine.",
		}),
		DocsDroppedTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "index_docs_dropped_total",
			Help: "Documents dropped for having no extractable tokens.",
		}),
		IndexLatency: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_add_duration_seconds",
			Help:    "Latency of adding one document to the engine.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		CheckpointsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "index_checkpoints_total",
			Help: "Checkpoint save operations by status.",
		}, []string{"status"}),
		VocabularySize: auto.NewGauge(prometheus.GaugeOpts{
			Name: "index_vocabulary_size",
			Help: "Distinct tokens assigned a prime.",
		}),
		IndexedDocuments: auto.NewGauge(prometheus.GaugeOpts{
			Name: "index_documents",
			Help: "Documents currently held by the engine.",
		}),
		ArchiveWritesTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Document archive upserts by status.",
		}, []string{"status"}),

		SearchQueriesTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Search queries by result type (ok, zero_result, error).",
		}, []string{"result_type"}),
		SearchLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_latency_seconds",
			Help:    "Search query latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"cache_status"}),
		SearchResultsCount: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Results returned per search query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		CacheHitsTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cached search responses served.",
		}),
		CacheMissesTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Search requests that missed the cache.",
		}),
		FeedbackJumpsTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "search_feedback_jumps_total",
			Help: "Post-query feedback updates applied to the engine.",
		}),
	}
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide Metrics instance, building it on first
// use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New()
	})
	return defaultM
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
