package metrics

import (
	"sync"
	"time"

	"github.com/marmos91/dittostore/pkg/layer"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// operatorMetrics is the Prometheus implementation of layer.MetricsRecorder.
type operatorMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationsFailed  *prometheus.CounterVec
	inFlight          *prometheus.GaugeVec
	bytesTransferred  *prometheus.CounterVec
}

var (
	operatorOnce    sync.Once
	operatorDefault *operatorMetrics
)

// NewOperatorMetrics returns the Prometheus-backed recorder for the metrics
// layer. Every operator shares the same collectors, labelled by service.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes layer.NewMetrics fall back to its no-op recorder.
func NewOperatorMetrics() layer.MetricsRecorder {
	if !IsEnabled() {
		return nil
	}
	operatorOnce.Do(func() {
		operatorDefault = newOperatorMetrics(GetRegistry())
	})
	return operatorDefault
}

func newOperatorMetrics(reg prometheus.Registerer) *operatorMetrics {
	return &operatorMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_operations_total",
				Help: "Total number of storage operations by service, operation and status",
			},
			[]string{"service", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittostore_operation_duration_seconds",
				Help: "Duration of storage operations in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
					30.0,  // 30s
				},
			},
			[]string{"service", "operation"},
		),
		operationsFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_operation_errors_total",
				Help: "Total number of failed storage operations by error kind",
			},
			[]string{"service", "operation", "kind"},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittostore_operations_in_flight",
				Help: "Current number of storage operations in progress",
			},
			[]string{"service", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_bytes_transferred_total",
				Help: "Total bytes moved by readers and writers",
			},
			[]string{"service", "direction"},
		),
	}
}

func (m *operatorMetrics) RecordOperation(scheme, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.operationsFailed.WithLabelValues(scheme, operation, store.KindOf(err).String()).Inc()
	}
	m.operationsTotal.WithLabelValues(scheme, operation, status).Inc()
	if duration > 0 {
		m.operationDuration.WithLabelValues(scheme, operation).Observe(duration.Seconds())
	}
}

func (m *operatorMetrics) RecordBytes(scheme, direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(scheme, direction).Add(float64(bytes))
}

func (m *operatorMetrics) RecordInFlight(scheme, operation string, delta int) {
	m.inFlight.WithLabelValues(scheme, operation).Add(float64(delta))
}
