// Package metrics defines the Prometheus instrumentation for the service.
// All collectors are registered on the default registry and exposed through
// the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediagen"

// Job lifecycle counters.
var (
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_created_total",
		Help:      "Number of generation jobs accepted.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_completed_total",
		Help:      "Number of jobs that finished successfully.",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_failed_total",
		Help:      "Number of jobs that failed permanently.",
	})

	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_retried_total",
		Help:      "Number of retry attempts scheduled.",
	})

	JobsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_cancelled_total",
		Help:      "Number of jobs cancelled by clients.",
	})
)

// JobDuration observes end-to-end job processing time in seconds.
var JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "job_duration_seconds",
	Help:      "Time from first processing attempt to terminal state.",
	Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
})

// QueueDepth tracks the number of visible tasks per queue.
var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "queue_depth",
	Help:      "Number of tasks waiting on the broker queue.",
}, []string{"queue"})

// JobsByStatus tracks the current number of jobs per lifecycle state.
var JobsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "jobs_by_status",
	Help:      "Current number of jobs per status.",
}, []string{"status"})

// HTTP server metrics.
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Provider call metrics.
var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "Number of generation calls by outcome.",
	}, []string{"outcome"})

	ProviderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_call_duration_seconds",
		Help:      "Latency of provider generation calls.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})
)
