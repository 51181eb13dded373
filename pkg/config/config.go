// Package config loads the benchflow engine configuration from a YAML file
// and applies defaults for anything not set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benchflow/benchflow/pkg/errors"
)

// Config holds the complete engine configuration
type Config struct {
	Version string        `yaml:"version" json:"version"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EngineConfig holds directory layout and concurrency settings for the engine
type EngineConfig struct {
	// BaseDir is the root under which staged files, run workspaces, and
	// aggregation directories are created.
	BaseDir string `yaml:"baseDir" json:"baseDir"`

	// MaxConcurrentRuns caps the number of runs executing at once. Zero
	// means unlimited.
	MaxConcurrentRuns int `yaml:"maxConcurrentRuns" json:"maxConcurrentRuns"`

	// CommandTimeout bounds a single dispatched command. Zero disables the
	// per-command deadline.
	CommandTimeout time.Duration `yaml:"commandTimeout" json:"commandTimeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns a configuration with sensible defaults applied
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Engine: EngineConfig{
			BaseDir:           "/var/lib/benchflow",
			MaxConcurrentRuns: 8,
			CommandTimeout:    0,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadConfig reads configuration from the given path. A missing path ("")
// yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot work with
func (c *Config) Validate() error {
	if c.Engine.BaseDir == "" {
		return fmt.Errorf("%w: engine.baseDir must not be empty", errors.ErrInvalidConfig)
	}
	if c.Engine.MaxConcurrentRuns < 0 {
		return fmt.Errorf("%w: engine.maxConcurrentRuns must not be negative", errors.ErrInvalidConfig)
	}
	if c.Engine.CommandTimeout < 0 {
		return fmt.Errorf("%w: engine.commandTimeout must not be negative", errors.ErrInvalidConfig)
	}
	return nil
}

// StagingDir is the directory for uploaded argument files
func (c *Config) StagingDir() string {
	return filepath.Join(c.Engine.BaseDir, "staging")
}

// RunsDir is the directory under which per-run workspaces are created
func (c *Config) RunsDir() string {
	return filepath.Join(c.Engine.BaseDir, "runs")
}

// PostprocDir is the directory under which cohort aggregation trees are built
func (c *Config) PostprocDir() string {
	return filepath.Join(c.Engine.BaseDir, "postproc")
}
