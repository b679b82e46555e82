// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC as the process-local timezone to prevent drift bugs
//     (business-hours math converts explicitly via the configured zone).
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator, plus the
//     cross-field rules validator tags cannot express.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
// A ConfigError at startup is fatal: the process must exit non-zero.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the middleware configuration from the environment.
func Load() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent). godotenv does NOT
	// override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Process envconfig tags. The empty prefix means envconfig uses
	// the exact tag values (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Populate build metadata from linker-injected variables.
	cfg.Build = NewBuildInfo()

	// Step 5: Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := cfg.validateCrossField(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossField enforces the rules struct tags cannot express:
// replica bound ordering, parseable business-hours window, and a resolvable
// IANA timezone.
func (c *Config) validateCrossField() *ConfigError {
	if c.Policy.MinReplicas > c.Policy.MaxReplicas {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("CLUSTER_MIN_REPLICAS (%d) must not exceed CLUSTER_MAX_REPLICAS (%d)", c.Policy.MinReplicas, c.Policy.MaxReplicas),
		}
	}

	for _, hhmm := range []string{c.Schedule.BusinessStart, c.Schedule.BusinessEnd} {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("business-hours boundary %q is not a valid HH:MM time", hhmm),
				Err:     err,
			}
		}
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("BUSINESS_HOURS_TIMEZONE %q is not a valid IANA timezone", c.Schedule.Timezone),
			Err:     err,
		}
	}

	return nil
}
