// Package config loads the fsprog YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docfate111/HDrepresentation/pkg/fsprog"
)

// Config holds all fsprog configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Output    OutputConfig    `yaml:"output"`
	Generator GeneratorConfig `yaml:"generator"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// OutputConfig controls how programs are persisted.
type OutputConfig struct {
	Format string `yaml:"format"` // json, yaml
}

// GeneratorConfig seeds fsprog.Options.
type GeneratorConfig struct {
	Seed          uint64 `yaml:"seed"`
	Root          string `yaml:"root"`
	MaxSyscalls   int    `yaml:"max_syscalls"`
	MaxFiles      int    `yaml:"max_files"`
	BacktrackProb int    `yaml:"backtrack_prob"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	d := fsprog.Defaults()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Output:  OutputConfig{Format: string(fsprog.FormatJSON)},
		Generator: GeneratorConfig{
			Seed:          d.Seed,
			Root:          d.Root,
			MaxSyscalls:   d.MaxSyscalls,
			MaxFiles:      d.MaxFiles,
			BacktrackProb: d.BacktrackProb,
		},
	}
}

// Options converts the generator section.
func (c *Config) Options() fsprog.Options {
	return fsprog.Options{
		Seed:          c.Generator.Seed,
		Root:          c.Generator.Root,
		MaxSyscalls:   c.Generator.MaxSyscalls,
		MaxFiles:      c.Generator.MaxFiles,
		BacktrackProb: c.Generator.BacktrackProb,
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FSPROG_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FSPROG_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = strings.ToLower(v)
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	switch fsprog.Format(c.Output.Format) {
	case fsprog.FormatJSON, fsprog.FormatYAML:
	default:
		return fmt.Errorf("invalid output format %q", c.Output.Format)
	}
	return nil
}
