// Package metrics exposes Prometheus collectors for pipeline runs.
//
// # Overview
//
// The metrics package provides:
//   - Run counters labelled by pipeline and terminal status
//   - Record counters for extraction and delivery
//   - Page, batch and retry accounting
//   - OAuth2 token refresh outcomes
//
// # Basic Usage
//
//	timer := metrics.NewTimer("orders")
//	result := run()
//	metrics.RunDuration.WithLabelValues("orders").Observe(timer.Stop().Seconds())
//	metrics.RecordsExtracted.WithLabelValues("orders", "http").Add(float64(result.Extracted))
//
// All collectors register with the default Prometheus registry through promauto.
// The CLI serves them with promhttp when a metrics address is configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

var (
	// PipelineRuns counts finished runs.
	// Labels: pipeline, status (completed/failed/halted)
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by terminal status",
		},
		[]string{"pipeline", "status"},
	)

	// RunDuration tracks wall time of a run in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets: []float64{
				0.01, // 10ms - inline data
				0.1,  // 100ms - single page
				1,    // 1s
				10,   // 10s - paginated APIs
				60,   // 1m
				600,  // 10m - bulk loads
			},
		},
		[]string{"pipeline"},
	)

	// RecordsExtracted counts records accumulated from sources after the cap.
	// Labels: pipeline, adapter
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Total number of records extracted",
		},
		[]string{"pipeline", "adapter"},
	)

	// RecordsDelivered counts records in batches accepted by a target
	RecordsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_delivered_total",
			Help:      "Total number of records delivered",
		},
		[]string{"pipeline", "adapter"},
	)

	// PagesFetched counts download calls that produced a page
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of pages fetched",
		},
		[]string{"pipeline", "adapter"},
	)

	// BatchSize tracks the size of delivered batches
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_records",
			Help:      "Number of records per delivered batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"pipeline", "adapter"},
	)

	// BatchesSkipped counts batches dropped after retries were exhausted
	BatchesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_skipped_total",
			Help:      "Total number of batches skipped after exhausting retries",
		},
		[]string{"pipeline", "adapter"},
	)

	// RetryAttempts counts failed attempts reported by the retry executor.
	// Labels: pipeline, phase (extract/load)
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_attempts_total",
			Help:      "Total number of failed download or upload attempts",
		},
		[]string{"pipeline", "phase"},
	)

	// TokenRefreshes counts OAuth2 token exchanges.
	// Labels: grant (refresh_token/client_credentials), status (success/failure)
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Total number of OAuth2 token exchanges",
		},
		[]string{"grant", "status"},
	)

	// HTTPRequests counts outbound adapter requests.
	// Labels: host, code (status code or "error")
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"host", "code"},
	)

	// ActiveRuns tracks runs in progress
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of pipeline runs in progress",
		},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the label the timer was created with
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It may be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
