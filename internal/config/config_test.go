package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ".pilot/checkpoints", cfg.CheckpointDir)
	assert.True(t, cfg.History.Enabled)
	assert.False(t, cfg.Artifacts.Enabled())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
timeout: 45m
log_level: debug
checkpoint_interval: 10s
session:
  launch_timeout: 2m
  health_interval: 20s
step_retry:
  max_attempts: 5
  initial_delay: 1s
history:
  enabled: false
artifacts:
  endpoint: minio.internal:9000
  bucket: pilot-artifacts
  access_key: ci
  secret_key: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.CheckpointInterval)
	assert.Equal(t, 2*time.Minute, cfg.Session.LaunchTimeout)
	assert.Equal(t, 20*time.Second, cfg.Session.HealthInterval)
	// Untouched values keep defaults.
	assert.Equal(t, 90*time.Second, cfg.Session.ReadyTimeout)
	assert.Equal(t, 5, cfg.StepRetry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.StepRetry.InitialDelay)
	assert.False(t, cfg.History.Enabled)
	assert.True(t, cfg.Artifacts.Enabled())
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: [not a duration"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout format")
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".pilot"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".pilot", "config.yaml"), []byte("log_level: warn\n"), 0o644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	timeout := 10 * time.Minute
	logDir := "/tmp/logs"
	resume := true

	cfg.MergeWithFlags(&timeout, &logDir, nil, &resume, nil)

	assert.Equal(t, timeout, cfg.Timeout)
	assert.Equal(t, logDir, cfg.LogDir)
	assert.Equal(t, ".pilot/checkpoints", cfg.CheckpointDir)
	assert.True(t, cfg.Resume)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"zero checkpoint interval", func(c *Config) { c.CheckpointInterval = 0 }},
		{"health timeout exceeds interval", func(c *Config) { c.Session.HealthTimeout = c.Session.HealthInterval }},
		{"zero retry attempts", func(c *Config) { c.StepRetry.MaxAttempts = 0 }},
		{"backoff below one", func(c *Config) { c.StepRetry.BackoffMultiplier = 0.5 }},
		{"history without path", func(c *Config) { c.History = HistoryConfig{Enabled: true} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
