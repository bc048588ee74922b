package app

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a scene's preload wait when neither the CLI nor
// the manifest sets one.
const DefaultTimeout = 30 * time.Second

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath string // hcl file or directory

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// Timeout is the default per-scene preload timeout.
	Timeout time.Duration
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
