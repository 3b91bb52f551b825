// Package config loads the application configuration from the XDG config
// file, with environment variable overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "PARLEY_"

// Config is the merged application configuration.
type Config struct {
	// BaseURL is the inference proxy endpoint.
	BaseURL string `json:"base_url" validate:"omitempty,url"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `json:"api_key,omitempty"`

	// Model is the identifier forwarded to the proxy with every turn.
	Model string `json:"model" validate:"required"`

	MaxTokens int `json:"max_tokens" validate:"min=1"`
	MaxTurns  int `json:"max_turns" validate:"min=1,max=100"`

	// BashTimeoutSeconds is the default shell tool timeout.
	BashTimeoutSeconds int `json:"bash_timeout_seconds" validate:"min=1,max=120"`

	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "http://127.0.0.1:8080",
		Model:              "default",
		MaxTokens:          8192,
		MaxTurns:           20,
		BashTimeoutSeconds: 30,
		LogLevel:           "info",
	}
}

// Load builds the configuration: defaults, then the JSON file at path (a
// missing file is fine), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return nil, fmt.Errorf("invalid config field %s: failed on '%s' with value '%v'", e.Field(), e.Tag(), e.Value())
		}
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		config.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "API_KEY"); v != "" {
		config.APIKey = v
	}
	if v := os.Getenv(EnvPrefix + "MODEL"); v != "" {
		config.Model = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxTokens = n
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxTurns = n
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}
