package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Service-specific defaults are handled by the services themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyLayersDefaults(&cfg.Layers)

	// Add an in-memory service if none is configured, so a fresh install
	// can be exercised without any setup
	if len(cfg.Services) == 0 {
		cfg.Services = []ServiceConfig{
			{Name: "default", Type: "memory"},
		}
	}

	applyServiceDefaults(cfg.Services)

	if cfg.DefaultService == "" && len(cfg.Services) == 1 {
		cfg.DefaultService = cfg.Services[0].Name
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

// applyLayersDefaults fills the tuning of enabled layers. Disabled layers
// keep their zero values.
func applyLayersDefaults(cfg *LayersConfig) {
	if cfg.Retry.Enabled {
		if cfg.Retry.MaxAttempts == 0 {
			cfg.Retry.MaxAttempts = 4
		}
		if cfg.Retry.InitialInterval == 0 {
			cfg.Retry.InitialInterval = 100 * time.Millisecond
		}
		if cfg.Retry.MaxInterval == 0 {
			cfg.Retry.MaxInterval = 10 * time.Second
		}
		if cfg.Retry.Multiplier == 0 {
			cfg.Retry.Multiplier = 2
		}
	}

	if cfg.Timeout.Enabled {
		if cfg.Timeout.Timeout == 0 {
			cfg.Timeout.Timeout = 60 * time.Second
		}
		if cfg.Timeout.IOTimeout == 0 {
			cfg.Timeout.IOTimeout = 10 * time.Second
		}
	}
}

// applyServiceDefaults sets service defaults.
func applyServiceDefaults(services []ServiceConfig) {
	for i := range services {
		svc := &services[i]

		svc.Type = strings.ToLower(svc.Type)

		if svc.Options == nil {
			svc.Options = make(map[string]any)
		}

		if svc.Root == "" {
			svc.Root = "/"
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Layers: LayersConfig{
			Logging: true,
			Retry:   RetryLayerConfig{Enabled: true},
			Timeout: TimeoutLayerConfig{Enabled: true},
		},
		Services: []ServiceConfig{
			{
				Name: "default",
				Type: "memory",
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
