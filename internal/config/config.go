// Package config provides configuration management for daforfer.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// config file, DAFORFER_* environment variables, and command-line flags
// (applied by the caller).
//
// Config file locations (priority order):
//  1. $DAFORFER_CONFIG
//  2. ./daforfer.yaml
//  3. $XDG_CONFIG_HOME/daforfer/config.yaml
//  4. ~/.config/daforfer/config.yaml
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBusyTimeout is how long opening waits for another writer's lock
	DefaultBusyTimeout = 5 * time.Second
	// DefaultValuesSheet names the workbook sheet holding scalar values
	DefaultValuesSheet = "values"
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied either way.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// ApplyEnv overlays DAFORFER_* environment variables
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.applyDefaults()
	return nil
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Database: DatabaseConfig{BusyTimeout: Duration(DefaultBusyTimeout)},
		Export:   ExportConfig{ValuesSheet: DefaultValuesSheet},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.BusyTimeout <= 0 {
		c.Database.BusyTimeout = Duration(DefaultBusyTimeout)
	}
	if strings.TrimSpace(c.Export.ValuesSheet) == "" {
		c.Export.ValuesSheet = DefaultValuesSheet
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	db := c.Database.Path
	if db == "" {
		db = "(from arguments)"
	}
	return fmt.Sprintf("Database: %s, busy timeout: %s, values sheet: %q",
		db, c.Database.BusyTimeout.Duration(), c.Export.ValuesSheet)
}
