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
// Log level normalization is handled in ApplyDefaults, not here. Validation
// accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	httpCfg := cfg.Adapters.HTTP
	if httpCfg.Threads < 1 {
		return fmt.Errorf("adapters.http.threads: must be >= 1, got %d", httpCfg.Threads)
	}
	if httpCfg.QueueCapacity < 1 {
		return fmt.Errorf("adapters.http.queue_capacity: must be >= 1, got %d", httpCfg.QueueCapacity)
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == httpCfg.Port {
		return fmt.Errorf("server.metrics.port: %d conflicts with adapters.http.port", cfg.Server.Metrics.Port)
	}

	if cfg.Store.Type == "filesystem" {
		path, ok := cfg.Store.Filesystem["path"].(string)
		if !ok || path == "" {
			return fmt.Errorf("store.filesystem.path: must be a non-empty string")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
