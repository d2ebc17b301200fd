// Package metrics exposes Prometheus collectors for the service.
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
	crawlPagesTotal            *prometheus.CounterVec
	crawlRunsTotal             *prometheus.CounterVec
	crawlActiveWorkers         prometheus.Gauge
	embeddingAttemptsTotal     *prometheus.CounterVec
	chatMessagesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebrain_crawl_pages_total",
				Help: "Total number of pages processed, labeled by site host and status.",
			},
			[]string{"site", "status"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebrain_crawl_runs_total",
				Help: "Total number of crawl runs finished, labeled by status.",
			},
			[]string{"status"},
		)

		crawlActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitebrain_crawl_active_workers",
				Help: "Number of workers currently processing a page.",
			},
		)

		embeddingAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebrain_embedding_attempts_total",
				Help: "Total number of embedding calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		chatMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebrain_chat_messages_total",
				Help: "Total number of chat messages handled, labeled by outcome.",
			},
			[]string{"outcome"},
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

// ObservePage increments the per-page crawl counters.
func ObservePage(site string, status string) {
	crawlPagesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveRun increments the crawl run counter for the given status.
func ObserveRun(status string) {
	crawlRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlActiveWorkers.Dec()
}

// ObserveEmbedding records the outcome of one embedding call.
func ObserveEmbedding(outcome string) {
	embeddingAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveChatMessage records the outcome of one handled chat message.
func ObserveChatMessage(outcome string) {
	chatMessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
