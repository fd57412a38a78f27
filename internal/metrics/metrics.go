// Package metrics exposes Prometheus collectors for the cache warmer.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	warmItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmer_items_total",
			Help: "Total number of items requested, labeled by site and result.",
		},
		[]string{"site", "result"},
	)

	warmBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmer_bytes_total",
			Help: "Total number of response bytes read while warming, labeled by site.",
		},
		[]string{"site"},
	)

	warmFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warmer_fetch_duration_seconds",
			Help:    "Histogram of warm request latencies, labeled by site.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	warmTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmer_ticks_total",
			Help: "Total number of stepper ticks, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	warmRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmer_runs_total",
			Help: "Total number of runs ended, labeled by reason.",
		},
		[]string{"reason"},
	)

	warmRunProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warmer_run_processed",
			Help: "Items processed by the current run.",
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

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warmer_rate_limit_delay_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// SanitizeSite extracts a lowercase hostname from rawURL.
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

// ObserveWarm records one warm request.
func ObserveWarm(rawURL string, result string, bytesRead int, duration time.Duration) {
	site := SanitizeSite(rawURL)
	warmItemsTotal.WithLabelValues(site, result).Inc()
	if bytesRead > 0 {
		warmBytesTotal.WithLabelValues(site).Add(float64(bytesRead))
	}
	if duration > 0 {
		warmFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// ObserveTick counts a stepper tick by outcome.
func ObserveTick(outcome string) {
	warmTicksTotal.WithLabelValues(outcome).Inc()
}

// ObserveRunEnd counts a finished or stopped run.
func ObserveRunEnd(reason string) {
	warmRunsTotal.WithLabelValues(reason).Inc()
}

// SetRunProcessed publishes the current run's processed count.
func SetRunProcessed(n int) {
	warmRunProcessed.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
