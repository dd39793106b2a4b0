// loader.go implements the configuration loading lifecycle for the OpsDeck
// platform.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in reminder scheduling.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration failures for diagnostics.
type ConfigErrorType string

const (
	ConfigErrDotenv     ConfigErrorType = "dotenv"
	ConfigErrProcess    ConfigErrorType = "process"
	ConfigErrValidation ConfigErrorType = "validation"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
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

// Load resolves the full configuration from the environment. dotenvPath may
// be empty to use the default ".env"; a missing file is not an error so
// deployed environments can rely on real environment variables alone.
func Load(dotenvPath string) (*Config, error) {
	// All time handling in the platform is UTC. Enforcing it here once
	// keeps reminder ETA math independent of host timezone.
	time.Local = time.UTC

	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
		return nil, &ConfigError{Type: ConfigErrDotenv, Message: "failed to load dotenv file", Err: err}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ConfigErrProcess, Message: "failed to process environment", Err: err}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{Type: ConfigErrValidation, Message: "configuration is invalid", Err: err}
	}

	return &cfg, nil
}

// MustLoad is Load with a panic on failure, for process entrypoints where a
// bad configuration should abort startup immediately.
func MustLoad(dotenvPath string) *Config {
	cfg, err := Load(dotenvPath)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}
