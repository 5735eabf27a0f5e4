package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkeller/pilot/internal/artifact"
	"github.com/jkeller/pilot/internal/checkpoint"
	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/history"
	"github.com/jkeller/pilot/internal/logger"
	"github.com/jkeller/pilot/internal/models"
	"github.com/jkeller/pilot/internal/orchestrator"
	"github.com/jkeller/pilot/internal/parser"
	"github.com/jkeller/pilot/internal/report"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Execute a UI scenario",
		Long: `Execute a UI scenario against one or more IDE sessions.

The run command parses the scenario file (YAML or Markdown with a fenced
yaml block), launches the declared sessions, and executes milestones in
dependency order. Progress is checkpointed so an interrupted run can be
resumed with --resume.

Configuration is loaded from .pilot/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  pilot run scenario.yaml
  pilot run --timeout 45m scenario.md
  pilot run --resume scenario.yaml      # Continue an interrupted run
  pilot run --verbose scenario.yaml     # Show debug-level progress
  pilot run --log-dir ./logs scenario.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .pilot/config.yaml)")
	cmd.Flags().String("timeout", "", "Maximum run time (e.g., 30m, 2h, 1h30m)")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("checkpoint-dir", "", "Directory for run checkpoints")
	cmd.Flags().Bool("resume", false, "Resume from the scenario's checkpoint if one exists")
	cmd.Flags().String("log-level", "", "Log verbosity (trace, debug, info, warn, error)")
	cmd.Flags().Bool("verbose", false, "Shorthand for --log-level debug")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDir, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &logDir
	}

	var checkpointDirPtr *string
	if cmd.Flags().Changed("checkpoint-dir") {
		checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
		checkpointDirPtr = &checkpointDir
	}

	var resumePtr *bool
	if cmd.Flags().Changed("resume") {
		resume, _ := cmd.Flags().GetBool("resume")
		resumePtr = &resume
	}

	var logLevelPtr *string
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		debug := "debug"
		logLevelPtr = &debug
	} else if cmd.Flags().Changed("log-level") {
		logLevel, _ := cmd.Flags().GetString("log-level")
		logLevelPtr = &logLevel
	}

	cfg.MergeWithFlags(timeoutPtr, logDirPtr, checkpointDirPtr, resumePtr, logLevelPtr)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	scenarioFile := args[0]
	fmt.Fprintf(cmd.OutOrStdout(), "Loading scenario from %s...\n", scenarioFile)
	scenario, err := parser.ParseFile(scenarioFile)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	consoleLog := logger.NewConsoleLogger(os.Stdout, cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMultiLogger(consoleLog, fileLog)

	checkpoints := checkpoint.NewStore(cfg.CheckpointDir)
	runner := orchestrator.NewRunner(cfg, nil, checkpoints, log)

	// Ctrl-C cancels the run; sessions are torn down and the checkpoint
	// keeps the progress made so far.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := runner.Run(ctx, scenario)

	reportPath := persistReport(cmd, cfg, result, log)
	recordHistory(cmd, cfg, result)
	uploadArtifacts(cmd, cfg, result, reportPath, fileLog.RunLogPath(), log)

	if scenario.Evaluate && result.RunID != "" {
		evaluateRun(cmd, scenario, result)
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	if !result.Passed() {
		return fmt.Errorf("scenario %s failed", scenario.ID)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nScenario completed successfully.\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Logs written to: %s\n", cfg.LogDir)
	return nil
}

// loadConfig loads configuration from --config or the default location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// persistReport writes the run report JSON next to the logs. Returns the
// report path, or "" when writing failed.
func persistReport(cmd *cobra.Command, cfg *config.Config, result models.RunReport, log *logger.MultiLogger) string {
	if result.RunID == "" {
		return ""
	}
	writer := report.NewWriter(filepath.Join(filepath.Dir(cfg.LogDir), "reports"))
	path, err := writer.Write(result)
	if err != nil {
		log.LogWarn(fmt.Sprintf("report write failed: %v", err))
		return ""
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to: %s\n", path)
	return path
}

// recordHistory stores the run in the SQLite history when enabled.
func recordHistory(cmd *cobra.Command, cfg *config.Config, result models.RunReport) {
	if !cfg.History.Enabled || result.RunID == "" {
		return
	}
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Warning: history store unavailable: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.RecordRun(cmd.Context(), result); err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Warning: failed to record run history: %v\n", err)
	}
}

// uploadArtifacts pushes the report, run log, and screenshots to object
// storage when an artifact endpoint is configured.
func uploadArtifacts(cmd *cobra.Command, cfg *config.Config, result models.RunReport, reportPath, runLogPath string, log *logger.MultiLogger) {
	if !cfg.Artifacts.Enabled() || result.RunID == "" {
		return
	}

	uploader, err := artifact.NewUploader(cfg.Artifacts, log)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Warning: artifact store unavailable: %v\n", err)
		return
	}

	paths := []string{reportPath, runLogPath}
	for _, m := range result.Milestones {
		if m.Screenshot != "" {
			paths = append(paths, m.Screenshot)
		}
	}

	if err := uploader.UploadRun(cmd.Context(), result, paths); err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Warning: artifact upload incomplete: %v\n", err)
	}
}

// evaluateRun asks the evaluation agent for a verdict on the finished run.
func evaluateRun(cmd *cobra.Command, scenario *models.Scenario, result models.RunReport) {
	evaluator := report.NewAgentEvaluator()
	eval, err := evaluator.Evaluate(cmd.Context(), scenario, result)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Warning: evaluation failed: %v\n", err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nEvaluation verdict: %s\n", eval.Verdict)
	if eval.Summary != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", eval.Summary)
	}
}
