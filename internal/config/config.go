// Package config loads pilot configuration from .pilot/config.yaml and merges
// it with CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionConfig controls IDE session launch and health checking.
type SessionConfig struct {
	// LaunchTimeout is the maximum time for the IDE process to start and
	// expose its automation endpoint.
	LaunchTimeout time.Duration `yaml:"launch_timeout"`

	// ReadyTimeout is the maximum time to wait for the workbench readiness
	// marker after launch.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// SettleDelay is a short pause after readiness before the first step.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// HealthInterval is the cadence of background health probes.
	HealthInterval time.Duration `yaml:"health_interval"`

	// HealthTimeout bounds a single health probe round-trip.
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// RetryConfig mirrors retry.Config in YAML form.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `yaml:"max_delay"`
}

// HistoryConfig controls the SQLite run history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// ArtifactConfig configures optional upload of run artifacts to S3-compatible
// storage. Uploads are best-effort and never fail a run.
type ArtifactConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether artifact upload is configured.
func (a ArtifactConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != ""
}

// Config represents pilot configuration options.
type Config struct {
	// Timeout is the maximum execution time for a whole scenario run.
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written.
	LogDir string `yaml:"log_dir"`

	// ScreenshotDir is where milestone screenshots are stored.
	ScreenshotDir string `yaml:"screenshot_dir"`

	// CheckpointDir is where orchestrator checkpoints are persisted.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// CheckpointInterval is the cadence of periodic checkpoint flushes.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// Resume loads a prior checkpoint for the scenario when present.
	Resume bool `yaml:"resume"`

	// RetryDelay is the fixed pause between milestone retry attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	Session   SessionConfig  `yaml:"session"`
	StepRetry RetryConfig    `yaml:"step_retry"`
	History   HistoryConfig  `yaml:"history"`
	Artifacts ArtifactConfig `yaml:"artifacts"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Timeout:            2 * time.Hour,
		LogLevel:           "info",
		LogDir:             ".pilot/logs",
		ScreenshotDir:      ".pilot/screenshots",
		CheckpointDir:      ".pilot/checkpoints",
		CheckpointInterval: 30 * time.Second,
		Resume:             false,
		RetryDelay:         5 * time.Second,
		Session: SessionConfig{
			LaunchTimeout:  60 * time.Second,
			ReadyTimeout:   90 * time.Second,
			SettleDelay:    2 * time.Second,
			HealthInterval: 15 * time.Second,
			HealthTimeout:  5 * time.Second,
		},
		StepRetry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      500 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxDelay:          10 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".pilot/history.db",
		},
	}
}

// yamlConfig mirrors Config with string durations for parsing.
type yamlConfig struct {
	Timeout            string `yaml:"timeout"`
	LogLevel           string `yaml:"log_level"`
	LogDir             string `yaml:"log_dir"`
	ScreenshotDir      string `yaml:"screenshot_dir"`
	CheckpointDir      string `yaml:"checkpoint_dir"`
	CheckpointInterval string `yaml:"checkpoint_interval"`
	Resume             *bool  `yaml:"resume"`
	RetryDelay         string `yaml:"retry_delay"`
	Session            struct {
		LaunchTimeout  string `yaml:"launch_timeout"`
		ReadyTimeout   string `yaml:"ready_timeout"`
		SettleDelay    string `yaml:"settle_delay"`
		HealthInterval string `yaml:"health_interval"`
		HealthTimeout  string `yaml:"health_timeout"`
	} `yaml:"session"`
	StepRetry struct {
		MaxAttempts       int     `yaml:"max_attempts"`
		InitialDelay      string  `yaml:"initial_delay"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier"`
		MaxDelay          string  `yaml:"max_delay"`
	} `yaml:"step_retry"`
	History   *HistoryConfig  `yaml:"history"`
	Artifacts *ArtifactConfig `yaml:"artifacts"`
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyDuration(&cfg.Timeout, "timeout", raw.Timeout); err != nil {
		return nil, err
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.LogDir != "" {
		cfg.LogDir = raw.LogDir
	}
	if raw.ScreenshotDir != "" {
		cfg.ScreenshotDir = raw.ScreenshotDir
	}
	if raw.CheckpointDir != "" {
		cfg.CheckpointDir = raw.CheckpointDir
	}
	if err := applyDuration(&cfg.CheckpointInterval, "checkpoint_interval", raw.CheckpointInterval); err != nil {
		return nil, err
	}
	if raw.Resume != nil {
		cfg.Resume = *raw.Resume
	}
	if err := applyDuration(&cfg.RetryDelay, "retry_delay", raw.RetryDelay); err != nil {
		return nil, err
	}

	if err := applyDuration(&cfg.Session.LaunchTimeout, "session.launch_timeout", raw.Session.LaunchTimeout); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Session.ReadyTimeout, "session.ready_timeout", raw.Session.ReadyTimeout); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Session.SettleDelay, "session.settle_delay", raw.Session.SettleDelay); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Session.HealthInterval, "session.health_interval", raw.Session.HealthInterval); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Session.HealthTimeout, "session.health_timeout", raw.Session.HealthTimeout); err != nil {
		return nil, err
	}

	if raw.StepRetry.MaxAttempts != 0 {
		cfg.StepRetry.MaxAttempts = raw.StepRetry.MaxAttempts
	}
	if raw.StepRetry.BackoffMultiplier != 0 {
		cfg.StepRetry.BackoffMultiplier = raw.StepRetry.BackoffMultiplier
	}
	if err := applyDuration(&cfg.StepRetry.InitialDelay, "step_retry.initial_delay", raw.StepRetry.InitialDelay); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.StepRetry.MaxDelay, "step_retry.max_delay", raw.StepRetry.MaxDelay); err != nil {
		return nil, err
	}

	if raw.History != nil {
		cfg.History = *raw.History
	}
	if raw.Artifacts != nil {
		cfg.Artifacts = *raw.Artifacts
	}

	return cfg, nil
}

func applyDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads configuration from .pilot/config.yaml in the
// specified directory. If the directory or file doesn't exist, returns
// default configuration without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".pilot", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(timeout *time.Duration, logDir *string, checkpointDir *string, resume *bool, logLevel *string) {
	if timeout != nil {
		c.Timeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if checkpointDir != nil {
		c.CheckpointDir = *checkpointDir
	}
	if resume != nil {
		c.Resume = *resume
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint_interval must be > 0, got %v", c.CheckpointInterval)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0, got %v", c.RetryDelay)
	}

	if c.Session.HealthInterval <= 0 {
		return fmt.Errorf("session.health_interval must be > 0, got %v", c.Session.HealthInterval)
	}
	if c.Session.HealthTimeout <= 0 || c.Session.HealthTimeout >= c.Session.HealthInterval {
		return fmt.Errorf("session.health_timeout must be > 0 and less than health_interval, got %v", c.Session.HealthTimeout)
	}

	if c.StepRetry.MaxAttempts < 1 {
		return fmt.Errorf("step_retry.max_attempts must be >= 1, got %d", c.StepRetry.MaxAttempts)
	}
	if c.StepRetry.BackoffMultiplier < 1 {
		return fmt.Errorf("step_retry.backoff_multiplier must be >= 1, got %v", c.StepRetry.BackoffMultiplier)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	return nil
}
