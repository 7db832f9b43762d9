// ============================================================================
// Spacetime Config - Runtime Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Load and validate the host configuration file
//
// Formats (chosen by file extension):
//   - .yaml / .yml  → gopkg.in/yaml.v3
//   - .toml         → github.com/pelletier/go-toml/v2
//
// Sections:
//   - scheduler: ready queue capacity, timer tick interval
//   - logging:   level, format (text|json), optional JSON log file
//   - metrics:   Prometheus endpoint
//   - tracing:   OpenTelemetry stdout exporter
//   - input:     keystroke source (stdin)
//   - modules:   extra modules registered at boot, each with an access level
//
// Missing fields keep the values from Default().
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as "10ms" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML parses a Go duration string from a YAML scalar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the complete runtime configuration.
type Config struct {
	Scheduler struct {
		QueueCapacity int      `yaml:"queue_capacity" toml:"queue_capacity"`
		TickInterval  Duration `yaml:"tick_interval" toml:"tick_interval"`
	} `yaml:"scheduler" toml:"scheduler"`

	Logging struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
		File   string `yaml:"file" toml:"file"`
	} `yaml:"logging" toml:"logging"`

	Metrics struct {
		Enabled bool `yaml:"enabled" toml:"enabled"`
		Port    int  `yaml:"port" toml:"port"`
	} `yaml:"metrics" toml:"metrics"`

	Tracing struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		Output  string `yaml:"output" toml:"output"`
	} `yaml:"tracing" toml:"tracing"`

	Input struct {
		Stdin bool `yaml:"stdin" toml:"stdin"`
	} `yaml:"input" toml:"input"`

	Modules []ModuleConfig `yaml:"modules" toml:"modules"`
}

// ModuleConfig declares a module registered at boot.
type ModuleConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Access string `yaml:"access" toml:"access"`
}

// AccessLevel parses the configured access level.
func (m ModuleConfig) AccessLevel() (types.AccessLevel, error) {
	return types.ParseAccessLevel(m.Access)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Scheduler.QueueCapacity = 100
	cfg.Scheduler.TickInterval = Duration(10 * time.Millisecond)
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Metrics.Port = 9090
	cfg.Input.Stdin = true
	return &cfg
}

// Load reads path on top of Default() and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML (%s): %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML (%s): %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the host cannot boot with.
func (c *Config) Validate() error {
	if c.Scheduler.QueueCapacity <= 0 {
		return fmt.Errorf("%w: scheduler.queue_capacity must be positive, got %d",
			ErrInvalidConfig, c.Scheduler.QueueCapacity)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("%w: scheduler.tick_interval must be positive", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format must be text or json, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("%w: metrics.port out of range: %d", ErrInvalidConfig, c.Metrics.Port)
	}

	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			return fmt.Errorf("%w: modules[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate module %q", ErrInvalidConfig, m.Name)
		}
		seen[m.Name] = true
		if _, err := m.AccessLevel(); err != nil {
			return fmt.Errorf("%w: modules[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	return nil
}
