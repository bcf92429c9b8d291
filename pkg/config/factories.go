package config

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/layer"
	"github.com/marmos91/dittostore/pkg/metrics"
	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/services/badger"
	"github.com/marmos91/dittostore/pkg/services/bolt"
	"github.com/marmos91/dittostore/pkg/services/fs"
	httpservice "github.com/marmos91/dittostore/pkg/services/http"
	"github.com/marmos91/dittostore/pkg/services/memory"
	"github.com/marmos91/dittostore/pkg/services/s3"
	sqlservice "github.com/marmos91/dittostore/pkg/services/sql"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/mitchellh/mapstructure"
)

// CreateService creates a backend based on a service entry.
//
// This factory function uses the Type field to determine which service
// implementation to create, then decodes the options map into the service's
// Config type and passes it to the service constructor. Root and Name of
// the entry take precedence over the same keys in the options.
//
// Supported types:
//   - "memory": pkg/services/memory (in-process, ephemeral)
//   - "fs": pkg/services/fs (local filesystem)
//   - "s3": pkg/services/s3 (Amazon S3 or compatible storage)
//   - "badger": pkg/services/badger (BadgerDB key-value store)
//   - "bolt": pkg/services/bolt (bbolt key-value file)
//   - "sql": pkg/services/sql (SQLite or PostgreSQL table)
//   - "http": pkg/services/http (read-only HTTP server)
//
// Returns a ConfigInvalid *store.Error when the options do not decode or
// validate.
func CreateService(ctx context.Context, svc ServiceConfig) (store.Accessor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch svc.Type {
	case "memory":
		var cfg memory.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(memory.New(ctx, cfg))
	case "fs":
		var cfg fs.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(fs.New(ctx, cfg))
	case "s3":
		var cfg s3.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(s3.New(ctx, cfg))
	case "badger":
		var cfg badger.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(badger.New(ctx, cfg))
	case "bolt":
		var cfg bolt.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(bolt.New(ctx, cfg))
	case "sql":
		var cfg sqlservice.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(sqlservice.New(ctx, cfg))
	case "http":
		var cfg httpservice.Config
		if err := decodeOptions(svc, &cfg); err != nil {
			return nil, err
		}
		cfg.Root, cfg.Name = svc.Root, svc.Name
		return checked(httpservice.New(ctx, cfg))
	default:
		return nil, store.Errorf(store.KindConfigInvalid, "unknown service type: %q", svc.Type).
			WithContext("service", svc.Name)
	}
}

// checked turns a typed constructor result into an Accessor without
// leaking a typed nil.
func checked[T store.Accessor](b T, err error) (store.Accessor, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

// decodeOptions decodes the options map of svc into out and validates it.
//
// Durations accept Go duration strings ("1s", "500ms") and numbers coming
// from environment variables are converted. Unknown keys are rejected.
func decodeOptions(svc ServiceConfig, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(svc.Options); err != nil {
		return store.Errorf(store.KindConfigInvalid, "failed to decode %s service options: %v", svc.Type, err).
			WithContext("service", svc.Name).
			WithSource(err)
	}
	if err := validate.Struct(out); err != nil {
		return store.Errorf(store.KindConfigInvalid, "invalid %s service options: %v", svc.Type, formatValidationError(err)).
			WithContext("service", svc.Name).
			WithSource(err)
	}
	return nil
}

// CreateLayers builds the layer stack described by cfg, outermost first.
//
// recorder feeds the metrics layer; a nil recorder leaves it out.
func CreateLayers(cfg LayersConfig, recorder layer.MetricsRecorder) []store.Layer {
	var layers []store.Layer

	if cfg.Tracing {
		layers = append(layers, layer.NewTracing(nil))
	}
	if recorder != nil {
		layers = append(layers, layer.NewMetrics(recorder))
	}
	if cfg.Logging {
		layers = append(layers, layer.NewLogging())
	}
	if cfg.Retry.Enabled {
		retryCfg := cfg.Retry.RetryConfig
		retryCfg.Notify = func(err error, wait time.Duration) {
			logger.Debug("Retrying after %v: %v", wait, err)
		}
		layers = append(layers, layer.NewRetry(retryCfg))
	}
	if cfg.ConcurrentLimit > 0 {
		layers = append(layers, layer.NewConcurrentLimit(cfg.ConcurrentLimit))
	}
	if cfg.Throttle.Bandwidth > 0 || cfg.Throttle.OpsPerSecond > 0 {
		layers = append(layers, layer.NewThrottle(cfg.Throttle))
	}
	if cfg.Timeout.Enabled {
		layers = append(layers, layer.NewTimeout(cfg.Timeout.TimeoutConfig))
	}

	return layers
}

// CreateOperator creates the backend of svc and wraps it in the layer
// stack of cfg. The undecorated backend is returned alongside so its
// resources can be released.
func CreateOperator(ctx context.Context, cfg *Config, svc ServiceConfig, recorder layer.MetricsRecorder) (store.Accessor, *operator.Operator, error) {
	backend, err := CreateService(ctx, svc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service %q: %w", svc.Name, err)
	}

	if recorder != nil {
		metrics.InstrumentHTTPClient(backend.Info())
	}

	op := operator.New(backend, CreateLayers(cfg.Layers, recorder)...)

	logger.Debug("Service %q created (type: %s, root: %s)", svc.Name, svc.Type, op.Info().Root())
	return backend, op, nil
}
