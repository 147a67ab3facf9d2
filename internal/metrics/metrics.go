// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	aqsRequestsTotal           *prometheus.CounterVec
	aqsRequestDurationSeconds  *prometheus.HistogramVec
	aqsRateLimitDelaysSeconds  *prometheus.HistogramVec
	harvestFailuresTotal       *prometheus.CounterVec
	harvestRowsTotal           *prometheus.CounterVec
	harvestFilesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		aqsRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqs_requests_total",
				Help: "Total AQS API requests, labeled by endpoint and HTTP code.",
			},
			[]string{"endpoint", "code"},
		)

		aqsRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aqs_request_duration_seconds",
				Help:    "Histogram of AQS API latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		)

		aqsRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aqs_rate_limit_delays_seconds",
				Help:    "Histogram of client-side rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		harvestFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_failures_total",
				Help: "Infrastructure failures during a sweep, labeled by profile and stage.",
			},
			[]string{"profile", "stage"},
		)

		harvestRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_rows_total",
				Help: "Rows written to CSV, labeled by profile.",
			},
			[]string{"profile"},
		)

		harvestFilesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_files_total",
				Help: "CSV files written, labeled by profile.",
			},
			[]string{"profile"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of status-server HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status-server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveAQSRequest records one upstream call. A zero code means a transport failure.
func ObserveAQSRequest(endpoint string, code int, duration time.Duration) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	aqsRequestsTotal.WithLabelValues(endpoint, label).Inc()
	aqsRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(endpoint string, duration time.Duration) {
	Init()
	aqsRateLimitDelaysSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveFailure counts a failed directory, write, manifest or notify step.
func ObserveFailure(profile, stage string) {
	Init()
	harvestFailuresTotal.WithLabelValues(profile, stage).Inc()
}

// ObserveFile records a written CSV and its row count.
func ObserveFile(profile string, rows int) {
	Init()
	harvestFilesTotal.WithLabelValues(profile).Inc()
	harvestRowsTotal.WithLabelValues(profile).Add(float64(rows))
}

// ObserveHTTPRequest increments the status-server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
