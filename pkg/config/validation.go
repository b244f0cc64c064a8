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
// Returns an error describing validation failures.
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
	if !cfg.Adapters.Wire.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if !cfg.Handlers.Hello.Enabled && !cfg.Handlers.Delay.Enabled && !cfg.Handlers.KV.Enabled {
		return fmt.Errorf("handlers: at least one handler must be enabled")
	}

	// A frame that cannot even hold its own length prefix is unusable
	if cfg.Adapters.Wire.MaxFrameSize > 0 && cfg.Adapters.Wire.MaxFrameSize < 4 {
		return fmt.Errorf("adapters.wire.max_frame_size: %d is too small to hold an empty request",
			cfg.Adapters.Wire.MaxFrameSize)
	}

	rl := cfg.Adapters.Wire.RateLimit
	if rl.Burst > 0 && rl.ConnectionsPerSecond == 0 {
		return fmt.Errorf("adapters.wire.rate_limit: burst is set but connections_per_second is 0")
	}
	if rl.PerClientBurst > 0 && rl.PerClientPerSecond == 0 {
		return fmt.Errorf("adapters.wire.rate_limit: per_client_burst is set but per_client_per_second is 0")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.Wire.Port {
		return fmt.Errorf("server.metrics.port: %d conflicts with adapters.wire.port", cfg.Server.Metrics.Port)
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
