package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/layer"
	"github.com/marmos91/dittostore/pkg/registry"
)

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// Every entry of cfg.Services is built with CreateOperator and registered
// under its name; cfg.DefaultService becomes the registry default. When a
// service fails to build, the services already created are closed.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Complete configuration loaded from config file
//   - recorder: Metrics recorder shared by every service (nil = no metrics layer)
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
//	defer reg.Close()
func InitializeRegistry(ctx context.Context, cfg *Config, recorder layer.MetricsRecorder) (*registry.Registry, error) {
	logger.Debug("Initializing registry from configuration")

	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(cfg.Services) == 0 {
		return nil, fmt.Errorf("no services configured: at least one service is required")
	}

	reg := registry.NewRegistry()

	for _, svc := range cfg.Services {
		backend, op, err := CreateOperator(ctx, cfg, svc, recorder)
		if err != nil {
			_ = reg.Close()
			return nil, err
		}

		if err := reg.Register(svc.Name, backend, op); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("failed to register service %q: %w", svc.Name, err)
		}
	}
	logger.Debug("Registered %d service(s)", reg.Count())

	if cfg.DefaultService != "" {
		if err := reg.SetDefault(cfg.DefaultService); err != nil {
			_ = reg.Close()
			return nil, err
		}
	}

	return reg, nil
}
