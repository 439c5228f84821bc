// Package metrics exposes Prometheus collectors for the harvester stages.
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
	harvestFetchesTotal      *prometheus.CounterVec
	harvestBytesTotal        *prometheus.CounterVec
	harvestItemsTotal        *prometheus.CounterVec
	harvestRetriesTotal      *prometheus.CounterVec
	harvestPauseSeconds      *prometheus.HistogramVec
	harvestFetchDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetches_total",
				Help: "Total number of remote fetches, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		harvestBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		harvestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_items_total",
				Help: "Total number of items processed, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		harvestRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_retries_total",
				Help: "Total number of fetch retries, labeled by stage.",
			},
			[]string{"stage"},
		)

		harvestPauseSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_pause_seconds",
				Help:    "Histogram of politeness and backoff pauses.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		harvestFetchDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
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

// ObserveFetch records one completed HTTP exchange.
func ObserveFetch(rawURL string, code int, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	harvestFetchesTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		harvestBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	harvestFetchDurationSecs.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveItem counts one processed item for a stage.
func ObserveItem(stage, outcome string) {
	Init()
	harvestItemsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveRetry counts one retry for a stage.
func ObserveRetry(stage string) {
	Init()
	harvestRetriesTotal.WithLabelValues(stage).Inc()
}

// ObservePause records the length of a deliberate wait.
func ObservePause(stage string, d time.Duration) {
	Init()
	harvestPauseSeconds.WithLabelValues(stage).Observe(d.Seconds())
}
