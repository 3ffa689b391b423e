// Package metrics exposes Prometheus collectors for the corpus builder.
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
	pagesScannedTotal          *prometheus.CounterVec
	pagesDispatchedTotal       prometheus.Counter
	renderRequestsTotal        *prometheus.CounterVec
	renderDurationSeconds      *prometheus.HistogramVec
	pagesDroppedTotal          *prometheus.CounterVec
	pagesWrittenTotal          prometheus.Counter
	rowGroupsTotal             prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesScannedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicorpus_pages_scanned_total",
				Help: "Total number of dump pages scanned, labeled by kind (article or other).",
			},
			[]string{"kind"},
		)

		pagesDispatchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wikicorpus_pages_dispatched_total",
				Help: "Total number of article pages handed to workers.",
			},
		)

		renderRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicorpus_render_requests_total",
				Help: "Total render calls, labeled by stage (title or body) and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikicorpus_render_duration_seconds",
				Help:    "Histogram of render call latencies, labeled by stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		pagesDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicorpus_pages_dropped_total",
				Help: "Total pages dropped by workers, labeled by reason.",
			},
			[]string{"reason"},
		)

		pagesWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wikicorpus_pages_written_total",
				Help: "Total cleaned pages written to the corpus file.",
			},
		)

		rowGroupsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wikicorpus_row_groups_total",
				Help: "Total row groups flushed to the corpus file.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikicorpus_active_workers",
				Help: "Number of workers currently processing a page.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikicorpus_rate_limit_delays_seconds",
				Help:    "Histogram of render rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
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
	return promhttp.Handler()
}

// ObservePageScanned counts one page read from the dump.
func ObservePageScanned(article bool) {
	Init()
	kind := "other"
	if article {
		kind = "article"
	}
	pagesScannedTotal.WithLabelValues(kind).Inc()
}

// ObservePageDispatched counts one page handed to a worker lane.
func ObservePageDispatched() {
	Init()
	pagesDispatchedTotal.Inc()
}

// ObserveRender records the outcome and latency of one render call.
func ObserveRender(stage string, ok bool, duration time.Duration) {
	Init()
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	renderRequestsTotal.WithLabelValues(stage, outcome).Inc()
	renderDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveDropped counts one page dropped by a worker.
func ObserveDropped(reason string) {
	Init()
	pagesDroppedTotal.WithLabelValues(reason).Inc()
}

// ObserveRowGroup counts one flushed row group of the given size.
func ObserveRowGroup(rows int) {
	Init()
	rowGroupsTotal.Inc()
	pagesWrittenTotal.Add(float64(rows))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
