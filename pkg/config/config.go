package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittostore/pkg/executor"
	"github.com/marmos91/dittostore/pkg/layer"
	"github.com/spf13/viper"
)

// Config represents the complete dittostore configuration.
//
// This structure captures all configurable aspects of the storage stack:
//   - Logging configuration
//   - The process-wide executor backing blocking operators
//   - Prometheus metrics exposure
//   - The layer stack wrapped around every service
//   - Named service definitions (type-specific options)
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSTORE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Service Configuration Pattern:
// Each service implementation defines its own Config type. A service entry
// carries its type and an options map, decoded into that type by the
// matching factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Executor sizes the worker pool used by blocking operators
	Executor executor.Options `mapstructure:"executor" yaml:"executor"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Layers is the decorator stack applied to every service
	Layers LayersConfig `mapstructure:"layers" yaml:"layers"`

	// Services defines the named storage services
	Services []ServiceConfig `mapstructure:"services" yaml:"services" validate:"dive"`

	// DefaultService names the service used when none is given
	DefaultService string `mapstructure:"default_service" yaml:"default_service,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the metrics layer
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the listen address of the /metrics endpoint
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// LayersConfig selects and tunes the layers wrapped around each service.
//
// The stack, outermost first, is: tracing, metrics, logging, retry,
// concurrent limit, throttle, timeout.
type LayersConfig struct {
	// Logging logs every operation at DEBUG level and failures at WARN
	Logging bool `mapstructure:"logging" yaml:"logging"`

	// Tracing opens an OpenTelemetry span per operation on the global
	// tracer provider
	Tracing bool `mapstructure:"tracing" yaml:"tracing"`

	// Retry retries temporary failures
	Retry RetryLayerConfig `mapstructure:"retry" yaml:"retry"`

	// ConcurrentLimit caps the operations in flight per service
	// 0 disables the limit
	ConcurrentLimit int64 `mapstructure:"concurrent_limit" yaml:"concurrent_limit" validate:"gte=0"`

	// Throttle paces bandwidth and operations; zero values disable it
	Throttle layer.ThrottleConfig `mapstructure:"throttle" yaml:"throttle"`

	// Timeout bounds operations
	Timeout TimeoutLayerConfig `mapstructure:"timeout" yaml:"timeout"`
}

// RetryLayerConfig enables the retry layer.
type RetryLayerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	layer.RetryConfig `mapstructure:",squash" yaml:",inline"`
}

// TimeoutLayerConfig enables the timeout layer.
type TimeoutLayerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	layer.TimeoutConfig `mapstructure:",squash" yaml:",inline"`
}

// ServiceConfig defines a single named service.
type ServiceConfig struct {
	// Name identifies the service in the registry and on the CLI
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Type selects the implementation
	// Valid values: memory, fs, s3, badger, bolt, sql, http
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory fs s3 badger bolt sql http"`

	// Root is the directory every path is resolved under
	Root string `mapstructure:"root" yaml:"root,omitempty"`

	// Options holds the type-specific settings, decoded by the service
	// factory
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ShutdownTimeout bounds how long the metrics server drains on exit.
const ShutdownTimeout = 5 * time.Second

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOSTORE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DITTOSTORE_ prefix and underscores
	// Example: DITTOSTORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"executor.workers", "executor.queue_size",
		"metrics.enabled", "metrics.addr",
		"default_service",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittostore/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// A missing config file is acceptable: defaults apply
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittostore")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittostore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

// FindService returns the service entry named name.
func (c *Config) FindService(name string) (*ServiceConfig, bool) {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i], true
		}
	}
	return nil, false
}
