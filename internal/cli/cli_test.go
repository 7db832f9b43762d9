package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "spacetime", cmd.Use, "Root command should be 'spacetime'")
	assert.Equal(t, version, cmd.Version)

	// 檢查子命令
	commands := cmd.Commands()
	assert.Len(t, commands, 2, "Should have 2 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["modules"], "Should have 'modules' command")

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildModulesCommand(t *testing.T) {
	cmd := buildModulesCommand()

	assert.Equal(t, "modules", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("json"), "Should have --json flag")
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Failed to write test config file")
	return path
}

const testConfig = `
logging:
  level: error
metrics:
  enabled: false
input:
  stdin: false
modules:
  - name: Shell
    access: standard
`

func TestModulesCommandText(t *testing.T) {
	path := writeConfig(t, "test.yaml", testConfig)

	root := BuildCLI()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"modules", "-c", path})

	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "Session: ")
	assert.Contains(t, text, "[0] System (admin)")
	assert.Contains(t, text, "reducer 1: clock")
	assert.Contains(t, text, "[1] Shell (standard)")
	assert.Contains(t, text, "table 0: calls")
}

func TestModulesCommandJSON(t *testing.T) {
	path := writeConfig(t, "test.yaml", testConfig)

	root := BuildCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"modules", "--json", "--config", path})

	require.NoError(t, root.Execute())

	var infos []types.ModuleInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "System", infos[0].Name)
	assert.Equal(t, types.AccessAdmin, infos[0].AccessLevel)
	assert.Equal(t, "Shell", infos[1].Name)
}

func TestModulesCommandMissingConfig(t *testing.T) {
	root := BuildCLI()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"modules", "-c", "/nonexistent/config.yaml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunCommandInvalidConfig(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "scheduler:\n  queue_capacity: -1\n")

	root := BuildCLI()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "-c", path})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_capacity")
}
