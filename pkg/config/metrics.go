package config

import (
	"github.com/marmos91/dittostore/pkg/layer"
	"github.com/marmos91/dittostore/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Recorder feeds the metrics layer of every service (nil if disabled)
	Recorder layer.MetricsRecorder
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates the Prometheus-backed recorder shared by every service
//
// If metrics are disabled, both fields are nil and no metrics layer is
// installed.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:   metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr}),
		Recorder: metrics.NewOperatorMetrics(),
	}
}
