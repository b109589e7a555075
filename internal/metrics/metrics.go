// Package metrics exposes Prometheus collectors for the mirror service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlRecordsNewTotal       prometheus.Counter
	cacheRecords               prometheus.Gauge
	cacheLookupsTotal          *prometheus.CounterVec
	remoteLookupsTotal         *prometheus.CounterVec
	listingPagesTotal          *prometheus.CounterVec
	aggregationRetriesTotal    prometheus.Counter
	paceDelaySeconds           *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_crawl_pages_total",
				Help: "Total catalog pages fetched by the crawler, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlRecordsNewTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_crawl_records_new_total",
				Help: "Total records first seen by the crawler.",
			},
		)

		cacheRecords = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mirror_cache_records",
				Help: "Number of records currently held in the cache.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_cache_lookups_total",
				Help: "Name lookups against the cache, labeled by result.",
			},
			[]string{"result"},
		)

		remoteLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_remote_lookups_total",
				Help: "Fallback lookups against the upstream API, labeled by result.",
			},
			[]string{"result"},
		)

		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_listing_pages_total",
				Help: "Listing pages fetched by the aggregator, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		aggregationRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_aggregation_retries_total",
				Help: "Retries performed while walking listing pages.",
			},
		)

		paceDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_pace_delay_seconds",
				Help:    "Histogram of request pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlPage counts one crawler page fetch.
func ObserveCrawlPage(outcome string) {
	Init()
	crawlPagesTotal.WithLabelValues(outcome).Inc()
}

// AddNewRecords counts records first seen by the crawler.
func AddNewRecords(n int) {
	Init()
	if n > 0 {
		crawlRecordsNewTotal.Add(float64(n))
	}
}

// SetCacheRecords updates the cached-record gauge.
func SetCacheRecords(n int) {
	Init()
	cacheRecords.Set(float64(n))
}

// ObserveCacheLookup counts a cache name lookup ("hit" or "miss").
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRemoteLookup counts an upstream fallback lookup ("hit" or "miss").
func ObserveRemoteLookup(result string) {
	Init()
	remoteLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveListingPage counts one aggregator page fetch.
func ObserveListingPage(kind, outcome string) {
	Init()
	listingPagesTotal.WithLabelValues(kind, outcome).Inc()
}

// IncAggregationRetry counts one aggregator retry.
func IncAggregationRetry() {
	Init()
	aggregationRetriesTotal.Inc()
}

// ObservePaceDelay records the duration of a pacing wait.
func ObservePaceDelay(host string, duration time.Duration) {
	Init()
	paceDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
