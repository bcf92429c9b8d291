package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"

services:
  - name: "scratch"
    type: "memory"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Expected default metrics addr ':9090', got %q", cfg.Metrics.Addr)
	}
	if cfg.DefaultService != "scratch" {
		t.Errorf("Expected the only service to be the default, got %q", cfg.DefaultService)
	}
	if cfg.Services[0].Root != "/" {
		t.Errorf("Expected default root '/', got %q", cfg.Services[0].Root)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing explicit path must not fall back to ~/.config/dittostore/
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Type != "memory" {
		t.Errorf("Expected a single default memory service, got %+v", cfg.Services)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_Layers(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
layers:
  logging: true
  concurrent_limit: 8
  retry:
    enabled: true
    max_attempts: 6
    initial_interval: 250ms
  timeout:
    enabled: true
    timeout: 5s
  throttle:
    bandwidth: 1048576

services:
  - name: "a"
    type: "memory"
  - name: "b"
    type: "fs"
    root: "/data"
    options:
      path: "/tmp/dittostore"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Layers.Retry.MaxAttempts != 6 {
		t.Errorf("Expected max_attempts 6, got %d", cfg.Layers.Retry.MaxAttempts)
	}
	if cfg.Layers.Retry.InitialInterval != 250*time.Millisecond {
		t.Errorf("Expected initial_interval 250ms, got %v", cfg.Layers.Retry.InitialInterval)
	}
	if cfg.Layers.Retry.MaxInterval != 10*time.Second {
		t.Errorf("Expected default max_interval 10s, got %v", cfg.Layers.Retry.MaxInterval)
	}
	if cfg.Layers.Timeout.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.Layers.Timeout.Timeout)
	}
	if cfg.Layers.ConcurrentLimit != 8 {
		t.Errorf("Expected concurrent_limit 8, got %d", cfg.Layers.ConcurrentLimit)
	}
	if cfg.Layers.Throttle.Bandwidth != 1048576 {
		t.Errorf("Expected bandwidth 1048576, got %d", cfg.Layers.Throttle.Bandwidth)
	}

	svc, ok := cfg.FindService("b")
	if !ok {
		t.Fatal("Expected service 'b'")
	}
	if svc.Root != "/data" || svc.Options["path"] != "/tmp/dittostore" {
		t.Errorf("Unexpected service 'b': %+v", svc)
	}
	if cfg.DefaultService != "" {
		t.Errorf("Expected no default service with two services, got %q", cfg.DefaultService)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DITTOSTORE_LOGGING_LEVEL", "WARN")
	t.Setenv("DITTOSTORE_METRICS_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected env level 'WARN', got %q", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled from environment")
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if got := GetConfigDir(); got != filepath.Join(tmpDir, "dittostore") {
		t.Errorf("Unexpected config dir %q", got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join(tmpDir, "dittostore", "config.yaml") {
		t.Errorf("Unexpected config path %q", got)
	}
	if ConfigExists() {
		t.Error("Expected no config file in a fresh directory")
	}
}
