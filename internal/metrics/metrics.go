// Package metrics exposes Prometheus collectors for the archiver.
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
	registryRequestsTotal      *prometheus.CounterVec
	registryRetriesTotal       *prometheus.CounterVec
	registryThrottleWaitSecond prometheus.Histogram
	tickersTotal               *prometheus.CounterVec
	artifactsTotal             *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDuration        *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registryRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_requests_total",
				Help: "Total number of registry requests, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		registryRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_retries_total",
				Help: "Total number of retried registry requests, labeled by host.",
			},
			[]string{"host"},
		)

		registryThrottleWaitSecond = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "registry_throttle_wait_seconds",
				Help:    "Histogram of time spent waiting on the registry throttle.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1},
			},
		)

		tickersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_tickers_total",
				Help: "Total number of tickers handled, labeled by status.",
			},
			[]string{"status"},
		)

		artifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_artifacts_total",
				Help: "Total number of artifacts uploaded, labeled by kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method, route, and status code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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
	Init()
	return promhttp.Handler()
}

// ObserveRegistryRequest counts one registry attempt.
func ObserveRegistryRequest(rawURL, outcome string) {
	Init()
	registryRequestsTotal.WithLabelValues(SanitizeHost(rawURL), outcome).Inc()
}

// ObserveRegistryRetry counts one scheduled retry.
func ObserveRegistryRetry(rawURL string) {
	Init()
	registryRetriesTotal.WithLabelValues(SanitizeHost(rawURL)).Inc()
}

// ObserveThrottleWait records time blocked on the minimum request interval.
func ObserveThrottleWait(d time.Duration) {
	Init()
	registryThrottleWaitSecond.Observe(d.Seconds())
}

// ObserveTicker increments the ticker counter for the given status.
func ObserveTicker(status string) {
	Init()
	tickersTotal.WithLabelValues(status).Inc()
}

// ObserveArtifact increments the uploaded artifact counter.
func ObserveArtifact(kind string) {
	Init()
	artifactsTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
