// Package metrics exposes Prometheus collectors for the audit service.
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
	auditsTotal                *prometheus.CounterVec
	auditDurationSeconds       prometheus.Histogram
	pagesTotal                 *prometheus.CounterVec
	crawledBytesTotal          *prometheus.CounterVec
	strategyFailuresTotal      *prometheus.CounterVec
	aiAnalysisTotal            *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		auditsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteaudit_audits_total",
				Help: "Total number of audits that reached a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		auditDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "siteaudit_audit_duration_seconds",
				Help:    "Time from dequeue to compiled report.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteaudit_pages_total",
				Help: "Total number of pages crawled, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		crawledBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteaudit_crawled_bytes_total",
				Help: "Total number of HTML bytes captured, labeled by site.",
			},
			[]string{"site"},
		)

		strategyFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteaudit_strategy_failures_total",
				Help: "Crawl strategies that failed, labeled by strategy and failure kind.",
			},
			[]string{"strategy", "kind"},
		)

		aiAnalysisTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteaudit_ai_analysis_total",
				Help: "AI analysis attempts, labeled by outcome (parse method, timeout or error).",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "siteaudit_active_workers",
				Help: "Number of workers currently running an audit.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "siteaudit_rate_limit_delay_seconds",
				Help:    "Time a page fetch waited for its host's rate limit token.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
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

// ObserveAudit counts an audit reaching a terminal status.
func ObserveAudit(status string) {
	auditsTotal.WithLabelValues(status).Inc()
}

// ObserveAuditDuration records how long the crawl and compile phase took.
func ObserveAuditDuration(d time.Duration) {
	auditDurationSeconds.Observe(d.Seconds())
}

// ObservePage counts one crawled page and the bytes captured for it.
func ObservePage(site, strategy, outcome string, bytesFetched int) {
	pagesTotal.WithLabelValues(strategy, outcome).Inc()
	if bytesFetched > 0 {
		crawledBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveStrategyFailure counts a strategy that failed before another one
// produced the result, or before the audit failed.
func ObserveStrategyFailure(strategy, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	strategyFailuresTotal.WithLabelValues(strategy, kind).Inc()
}

// ObserveAIAnalysis counts an AI analysis outcome.
func ObserveAIAnalysis(outcome string) {
	aiAnalysisTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records a politeness wait.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
