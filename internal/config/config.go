package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, loaded from environment variables.
// Command-line flags may override individual fields.
type Config struct {
	// DBPath locates the audit database file.
	DBPath string `env:"MULETRACE_DB" envDefault:"data/muletrace.db"`
	// KeyPath locates the master key file used for file encryption.
	KeyPath string `env:"MULETRACE_KEY_FILE" envDefault:"data/master.key"`
	// ScorerURL, when set, points at a remote fraud-scoring endpoint. The
	// built-in heuristic scorer is used otherwise.
	ScorerURL string `env:"MULETRACE_SCORER_URL"`
	// MetricsAddr, when set, serves the prometheus registry while a command
	// runs.
	MetricsAddr string `env:"MULETRACE_METRICS_ADDR"`
	// Verbose enables debug logging.
	Verbose bool `env:"MULETRACE_VERBOSE"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
