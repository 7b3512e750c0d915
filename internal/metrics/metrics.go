package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPResponseSize      prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Cascade metrics
	CascadeRunsTotal    prometheus.CounterVec
	CascadeDuration     prometheus.HistogramVec
	CascadePlannedPaths prometheus.HistogramVec
	CascadeCoalesced    prometheus.CounterVec

	// Scanner metrics
	ScanOperationsTotal prometheus.CounterVec
	ScanFanoutWidth     prometheus.HistogramVec

	// Work pool metrics
	PoolUnitsTotal  prometheus.CounterVec
	PoolInFlight    prometheus.GaugeVec
	PoolMaxInFlight prometheus.GaugeVec

	// Moderation metrics
	ModerationVerdictsTotal prometheus.CounterVec
	BlurChecksTotal         prometheus.CounterVec

	// Collaborator metrics
	ExternalCallsTotal   prometheus.CounterVec
	ExternalCallDuration prometheus.HistogramVec

	// Job metrics
	JobRunsTotal     prometheus.CounterVec
	JobEntitiesTotal prometheus.CounterVec

	// Redis metrics
	RedisOperationsTotal prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPResponseSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			// Cascade metrics
			CascadeRunsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cascade_runs_total",
					Help: "Total number of cascade runs by kind and outcome",
				},
				[]string{"kind", "event", "outcome"},
			),
			CascadeDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cascade_duration_seconds",
					Help:    "Cascade run duration in seconds",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				},
				[]string{"kind"},
			),
			CascadePlannedPaths: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cascade_planned_paths",
					Help:    "Number of work items planned per cascade",
					Buckets: prometheus.ExponentialBuckets(1, 4, 8),
				},
				[]string{"kind"},
			),
			CascadeCoalesced: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cascade_coalesced_total",
					Help: "Cascade requests skipped because a run for the same root held the lease",
				},
				[]string{"kind"},
			),

			// Scanner metrics
			ScanOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scan_operations_total",
					Help: "Store reads issued by the scanner",
				},
				[]string{"operation", "status"},
			),
			ScanFanoutWidth: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "scan_fanout_width",
					Help:    "Number of collections enumerated for one wildcard",
					Buckets: prometheus.ExponentialBuckets(1, 4, 8),
				},
				[]string{"collection"},
			),

			// Work pool metrics
			PoolUnitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "workpool_units_total",
					Help: "Units run by the bounded work pool",
				},
				[]string{"status"},
			),
			PoolInFlight: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "workpool_in_flight",
					Help: "Units currently in flight",
				},
				[]string{},
			),
			PoolMaxInFlight: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "workpool_max_in_flight",
					Help: "Highest concurrency observed by the last pool run",
				},
				[]string{},
			),

			// Moderation metrics
			ModerationVerdictsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moderation_verdicts_total",
					Help: "Text moderation verdicts by outcome",
				},
				[]string{"modified"},
			),
			BlurChecksTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blur_checks_total",
					Help: "Image safety checks by outcome",
				},
				[]string{"outcome"},
			),

			// Collaborator metrics
			ExternalCallsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "external_calls_total",
					Help: "Calls to external collaborators",
				},
				[]string{"service", "operation", "status"},
			),
			ExternalCallDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "external_call_duration_seconds",
					Help:    "External collaborator latency in seconds",
					Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"service", "operation"},
			),

			// Job metrics
			JobRunsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "job_runs_total",
					Help: "Batch job runs",
				},
				[]string{"job", "status"},
			),
			JobEntitiesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "job_entities_total",
					Help: "Entities cascaded by batch jobs",
				},
				[]string{"job"},
			),

			// Redis metrics
			RedisOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "redis_operations_total",
					Help: "Total number of Redis operations",
				},
				[]string{"operation", "status"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
