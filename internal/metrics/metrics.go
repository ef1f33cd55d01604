// Package metrics exposes process-wide Prometheus collectors for browser
// sessions, page captures, sink writes, and the ops HTTP server.
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
	browserSessionsLive        prometheus.Gauge
	browserSessionStartsTotal  *prometheus.CounterVec
	browserSessionStartSeconds prometheus.Histogram
	pagesTotal                 *prometheus.CounterVec
	sinkWriteSeconds           *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call multiple times.
func Init() {
	once.Do(func() {
		browserSessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "matchweek_browser_sessions_live",
			Help: "Browser processes currently owned by worker slots.",
		})
		browserSessionStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "matchweek_browser_session_starts_total",
			Help: "Browser launches, labeled by result.",
		}, []string{"result"})
		browserSessionStartSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchweek_browser_session_start_seconds",
			Help:    "Time to launch a browser process.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		})
		pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "matchweek_pages_total",
			Help: "Match pages visited, labeled by result.",
		}, []string{"result"})
		sinkWriteSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchweek_sink_write_seconds",
			Help:    "Latency of result sink writes, labeled by result.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"result"})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"})
		httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"})
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SessionStarted records a browser launch attempt.
func SessionStarted(ok bool, took time.Duration) {
	Init()
	if !ok {
		browserSessionStartsTotal.WithLabelValues("error").Inc()
		return
	}
	browserSessionStartsTotal.WithLabelValues("ok").Inc()
	browserSessionStartSeconds.Observe(took.Seconds())
	browserSessionsLive.Inc()
}

// SessionReleased decrements the live session gauge.
func SessionReleased() {
	Init()
	browserSessionsLive.Dec()
}

// ObservePage counts a visited match page.
func ObservePage(ok bool) {
	Init()
	pagesTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// ObserveSinkWrite records the latency of a sink write.
func ObserveSinkWrite(ok bool, took time.Duration) {
	Init()
	sinkWriteSeconds.WithLabelValues(resultLabel(ok)).Observe(took.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
