// Package metrics exposes Prometheus collectors for ingestion and the query API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceFetchesTotal         *prometheus.CounterVec
	sourceBytesTotal           *prometheus.CounterVec
	ingestRegionsTotal         *prometheus.CounterVec
	ingestRecordsTotal         *prometheus.CounterVec
	openStores                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admissions_source_fetches_total",
				Help: "Total number of publisher fetches, labeled by payload kind and status.",
			},
			[]string{"kind", "status"},
		)

		sourceBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admissions_source_bytes_total",
				Help: "Total number of bytes fetched from the publisher, labeled by payload kind.",
			},
			[]string{"kind"},
		)

		ingestRegionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admissions_ingest_regions_total",
				Help: "Total number of region units processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		ingestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admissions_ingest_records_total",
				Help: "Total number of records written, labeled by entity kind and outcome.",
			},
			[]string{"kind", "status"},
		)

		openStores = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "admissions_open_stores",
				Help: "Number of per-year storage handles currently open.",
			},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admissions_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one publisher fetch.
func ObserveFetch(kind, status string, bytesFetched int) {
	Init()
	sourceFetchesTotal.WithLabelValues(kind, status).Inc()
	if bytesFetched > 0 {
		sourceBytesTotal.WithLabelValues(kind).Add(float64(bytesFetched))
	}
}

// ObserveRegion increments the region unit counter for the given outcome.
func ObserveRegion(status string) {
	Init()
	ingestRegionsTotal.WithLabelValues(status).Inc()
}

// ObserveRecords adds n records of the given kind and outcome.
func ObserveRecords(kind, status string, n int) {
	Init()
	if n <= 0 {
		return
	}
	ingestRecordsTotal.WithLabelValues(kind, status).Add(float64(n))
}

// IncOpenStores increments the open storage handle gauge.
func IncOpenStores() {
	Init()
	openStores.Inc()
}

// DecOpenStores decrements the open storage handle gauge.
func DecOpenStores() {
	Init()
	openStores.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
