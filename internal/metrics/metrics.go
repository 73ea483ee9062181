// Package metrics exposes Prometheus collectors for the profile crawler.
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
	jobsTotal                  *prometheus.CounterVec
	extractionSeconds          *prometheus.HistogramVec
	retriesTotal               *prometheus.CounterVec
	activeWorkers              *prometheus.GaugeVec
	joinOutcomesTotal          *prometheus.CounterVec
	loginAttemptsTotal         *prometheus.CounterVec
	portfoliosTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call repeatedly; every
// Observe helper calls it first.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profilecrawler_jobs_total",
				Help: "Crawl jobs that reached a terminal status, by source and status.",
			},
			[]string{"source", "status"},
		)
		extractionSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profilecrawler_extraction_seconds",
				Help:    "Wall time spent extracting one source, retries included.",
				Buckets: []float64{0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source"},
		)
		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profilecrawler_retries_total",
				Help: "Retry wrapper decisions, by operation and result.",
			},
			[]string{"op", "result"},
		)
		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "profilecrawler_active_workers",
				Help: "Workers currently processing a message, by queue.",
			},
			[]string{"queue"},
		)
		joinOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profilecrawler_join_outcomes_total",
				Help: "Coordinator decisions, by outcome.",
			},
			[]string{"outcome"},
		)
		loginAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profilecrawler_login_attempts_total",
				Help: "Browser login attempts, by result.",
			},
			[]string{"result"},
		)
		portfoliosTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profilecrawler_portfolios_total",
				Help: "Portfolio generations that finished, by status.",
			},
			[]string{"status"},
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
	Init()
	return promhttp.Handler()
}

// ObserveJob counts a crawl job reaching status.
func ObserveJob(source, status string) {
	Init()
	jobsTotal.WithLabelValues(source, status).Inc()
}

// ObserveExtraction records how long one source extraction took.
func ObserveExtraction(source string, d time.Duration) {
	Init()
	extractionSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveRetry counts a retry decision for op.
func ObserveRetry(op, result string) {
	Init()
	retriesTotal.WithLabelValues(op, result).Inc()
}

// IncActiveWorkers increments the active workers gauge for queue.
func IncActiveWorkers(queue string) {
	Init()
	activeWorkers.WithLabelValues(queue).Inc()
}

// DecActiveWorkers decrements the active workers gauge for queue.
func DecActiveWorkers(queue string) {
	Init()
	activeWorkers.WithLabelValues(queue).Dec()
}

// ObserveJoin counts a coordinator outcome.
func ObserveJoin(outcome string) {
	Init()
	joinOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLogin counts a login attempt.
func ObserveLogin(success bool) {
	Init()
	result := "failure"
	if success {
		result = "success"
	}
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// ObservePortfolio counts a finished portfolio generation.
func ObservePortfolio(status string) {
	Init()
	portfoliosTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
