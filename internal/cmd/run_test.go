package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRunCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunRejectsInvalidTimeout(t *testing.T) {
	_, err := runRun(t, "--timeout", "not-a-duration", "scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout format")
}

func TestRunRejectsMissingScenarioFile(t *testing.T) {
	_, err := runRun(t, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunRejectsMalformedConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("timeout: [not, a, duration]"), 0o644))

	_, err := runRun(t, "--config", configPath, "scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunRejectsInvalidLogLevel(t *testing.T) {
	scenario := writeScenario(t, validScenarioYAML)
	_, err := runRun(t, "--log-level", "loud", scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRunRequiresExactlyOneArgument(t *testing.T) {
	_, err := runRun(t)
	require.Error(t, err)

	_, err = runRun(t, "a.yaml", "b.yaml")
	require.Error(t, err)
}
