package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Federated query metrics
	QueriesTotal    *prometheus.CounterVec
	FanoutDuration  *prometheus.HistogramVec
	HospitalCalls   *prometheus.CounterVec
	HospitalLatency *prometheus.HistogramVec

	// Audit metrics
	AuditAppends       *prometheus.CounterVec
	AuditOutboxDepth   prometheus.Gauge
	AuditRetries       *prometheus.CounterVec
	AuditRetryDuration prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "federated_queries_total",
			Help:      "Total number of federated patient queries",
		}, []string{"outcome"}),
		FanoutDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fanout_duration_seconds",
			Help:      "Wall-clock duration of the whole hospital fan-out",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		HospitalCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hospital_calls_total",
			Help:      "Per-hospital fan-out call outcomes",
		}, []string{"hospital", "status"}),
		HospitalLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hospital_call_duration_seconds",
			Help:      "Duration of individual hospital node calls",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"hospital"}),
		AuditAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_appends_total",
			Help:      "Audit log append attempts by result",
		}, []string{"result"}),
		AuditOutboxDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_outbox_depth",
			Help:      "Current number of pending audit outbox events",
		}),
		AuditRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_retry_attempts_total",
			Help:      "Total number of audit outbox retry attempts",
		}, []string{"result"}),
		AuditRetryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_retry_duration_seconds",
			Help:      "Time spent processing audit outbox batches",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}
