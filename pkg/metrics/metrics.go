package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector provides Prometheus metrics for lineage operations.
type PrometheusCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	auditViolations   prometheus.Gauge
	registry          *prometheus.Registry
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates a collector registered on its own registry.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calctree_operations_total",
			Help: "Total number of lineage operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calctree_operation_duration_seconds",
			Help:    "Duration of lineage operations by type",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"operation"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calctree_errors_total",
			Help: "Total number of failed lineage operations by error type",
		},
		[]string{"operation", "error_type"},
	)

	auditViolations := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "calctree_audit_violations",
			Help: "Integrity violations found by the most recent lineage audit",
		},
	)

	registry.MustRegister(operationsTotal, operationDuration, errorsTotal, auditViolations)

	return &PrometheusCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		auditViolations:   auditViolations,
		registry:          registry,
	}
}

func (m *PrometheusCollector) RecordOperation(ctx context.Context, operation string, status string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *PrometheusCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

func (m *PrometheusCollector) SetAuditViolations(ctx context.Context, count int64) {
	m.auditViolations.Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP exposure.
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}
