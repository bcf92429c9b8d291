// Package metrics provides Prometheus metrics collection for storage operators.
//
// All metrics are optional: if the registry was never initialized,
// constructors return nil and the metrics layer uses its no-op recorder.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Record every operation of an operator
//	op := operator.New(backend, layer.NewMetrics(metrics.NewOperatorMetrics()))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry, with the Go
// runtime and process collectors registered. Subsequent calls are ignored.
//
// sync.Once provides the memory barrier making the registry visible to
// every later GetRegistry call.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global registry, nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
