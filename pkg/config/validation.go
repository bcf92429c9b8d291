package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Service options are not validated here: each factory validates the
// decoded service Config when the service is built.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Services) == 0 {
		return fmt.Errorf("services: at least one service must be configured")
	}

	names := make(map[string]bool)
	for i, svc := range cfg.Services {
		if names[svc.Name] {
			return fmt.Errorf("services[%d]: duplicate service name %q", i, svc.Name)
		}
		names[svc.Name] = true
	}

	if cfg.DefaultService != "" && !names[cfg.DefaultService] {
		return fmt.Errorf("default_service: service %q is not configured", cfg.DefaultService)
	}

	if t := cfg.Layers.Throttle; t.Burst > 0 && t.Bandwidth == 0 {
		return fmt.Errorf("layers.throttle: burst requires bandwidth")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
