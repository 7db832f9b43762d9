package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 100, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.TickInterval.Std())
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "test.yaml", `
scheduler:
  queue_capacity: 16
  tick_interval: 250ms
logging:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9191
modules:
  - name: Shell
    access: standard
  - name: Monitor
    access: admin
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.TickInterval.Std())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	require.Len(t, cfg.Modules, 2)

	level, err := cfg.Modules[1].AccessLevel()
	require.NoError(t, err)
	assert.Equal(t, types.AccessAdmin, level)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "test.toml", `
[scheduler]
queue_capacity = 32
tick_interval = "1s"

[[modules]]
name = "Shell"
access = "standard"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval.Std())
	require.Len(t, cfg.Modules, 1)
	assert.Equal(t, "Shell", cfg.Modules[0].Name)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeFile(t, "partial.yaml", `
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.TickInterval.Std())
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadShippedConfigs(t *testing.T) {
	for _, name := range []string{"default.yaml", "default.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(filepath.Join("..", "..", "configs", name))
			require.NoError(t, err)
			assert.Len(t, cfg.Modules, 2)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		invalid bool
	}{
		{"bad yaml", "bad.yaml", "scheduler: [unclosed", false},
		{"bad duration", "dur.yaml", "scheduler:\n  tick_interval: soon\n", false},
		{"unknown extension", "cfg.json", "{}", true},
		{"zero capacity", "zero.yaml", "scheduler:\n  queue_capacity: 0\n", true},
		{"bad access", "access.yaml", "modules:\n  - name: X\n    access: root\n", true},
		{"duplicate module", "dup.yaml", "modules:\n  - name: X\n  - name: X\n", true},
		{"unnamed module", "unnamed.yaml", "modules:\n  - access: admin\n", true},
		{"bad format", "format.yaml", "logging:\n  format: xml\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
