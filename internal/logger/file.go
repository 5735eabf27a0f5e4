package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jkeller/pilot/internal/models"
)

// FileLogger logs run events to files in the configured log directory.
// It creates timestamped per-run log files, per-milestone detail logs,
// and maintains a latest.log symlink pointing to the most recent run.
// It is thread-safe and supports log level filtering.
type FileLogger struct {
	logDir        string
	runLog        *os.File
	runFile       string
	milestonesDir string
	logLevel      string
	mu            sync.Mutex
}

// NewFileLogger creates a FileLogger writing under logDir with the given
// log level. It creates the directory tree if needed, opens a timestamped
// run log file, and creates/updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	milestonesDir := filepath.Join(logDir, "milestones")
	if err := os.MkdirAll(milestonesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create milestones directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	ts := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", ts))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:        logDir,
		runLog:        file,
		runFile:       runFile,
		milestonesDir: milestonesDir,
		logLevel:      normalizeLogLevel(logLevel),
		mu:            sync.Mutex{},
	}

	logger.writeRunLog("=== Pilot Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message))
}

// LogMilestoneStart logs the start of a milestone at INFO level.
func (fl *FileLogger) LogMilestoneStart(milestone models.Milestone) {
	if !fl.shouldLog("info") {
		return
	}

	message := fmt.Sprintf(
		"[%s] Starting %s: %d steps, %d wait conditions\n",
		time.Now().Format("15:04:05"),
		milestone.Name,
		len(milestone.Steps),
		len(milestone.WaitFor),
	)
	fl.writeRunLog(message)
}

// LogMilestoneComplete logs the milestone outcome to the run log and writes
// a detailed per-milestone log file with step and wait condition results.
func (fl *FileLogger) LogMilestoneComplete(result models.MilestoneResult) {
	if fl.shouldLog("info") {
		ts := time.Now().Format("15:04:05")
		if result.Status == models.StatusPassed {
			fl.writeRunLog(fmt.Sprintf("[%s] %s passed: duration %.1fs\n", ts, result.Name, result.Duration.Seconds()))
		} else {
			fl.writeRunLog(fmt.Sprintf("[%s] %s failed: %s\n", ts, result.Name, result.Error))
		}
	}

	fl.writeMilestoneLog(result)
}

// writeMilestoneLog writes the detailed log for a single milestone.
// Errors are swallowed; detail logs are best-effort.
func (fl *FileLogger) writeMilestoneLog(result models.MilestoneResult) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	path := filepath.Join(fl.milestonesDir, fmt.Sprintf("%s.log", result.MilestoneID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}
	defer file.Close()

	content := fmt.Sprintf("=== Milestone %s: %s ===\n", result.MilestoneID, result.Name)
	content += fmt.Sprintf("Status: %s\n", result.Status)
	content += fmt.Sprintf("Session: %s\n", result.SessionID)
	content += fmt.Sprintf("Duration: %.1fs\n", result.Duration.Seconds())
	content += fmt.Sprintf("Retry Count: %d\n\n", result.RetryCount)

	if len(result.StepResults) > 0 {
		content += "=== Steps ===\n"
		for i, step := range result.StepResults {
			status := "ok"
			if !step.Passed {
				status = "FAILED"
				if step.Skipped {
					status = "skipped"
				}
			}
			content += fmt.Sprintf("%d. %s %s (%.1fs)", i+1, step.Action, status, step.Duration.Seconds())
			if step.Error != "" {
				content += fmt.Sprintf(" - %s", step.Error)
			}
			content += "\n"
		}
		content += "\n"
	}

	if len(result.WaitResults) > 0 {
		content += "=== Wait Conditions ===\n"
		for _, wait := range result.WaitResults {
			status := "satisfied"
			if !wait.Passed {
				status = "TIMED OUT"
			}
			content += fmt.Sprintf("- %s %s after %.1fs", wait.Type, status, wait.WaitTime.Seconds())
			if wait.Evidence != "" {
				content += fmt.Sprintf(" (%s)", wait.Evidence)
			}
			content += "\n"
		}
		content += "\n"
	}

	if result.Error != "" {
		content += fmt.Sprintf("Error:\n%s\n\n", result.Error)
	}
	if result.Screenshot != "" {
		content += fmt.Sprintf("Screenshot: %s\n", result.Screenshot)
	}
	content += fmt.Sprintf("Completed at: %s\n", time.Now().Format(time.RFC3339))

	file.WriteString(content)
}

// LogSessionEvent logs a session lifecycle event at INFO level.
func (fl *FileLogger) LogSessionEvent(sessionID, event string) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [session %s] %s\n", time.Now().Format("15:04:05"), sessionID, event))
}

// LogSummary logs the run summary with final statistics at INFO level.
func (fl *FileLogger) LogSummary(report models.RunReport) {
	if !fl.shouldLog("info") {
		return
	}

	ts := time.Now().Format("15:04:05")
	passed, failed := countMilestones(report)

	message := fmt.Sprintf(
		"\n[%s] === RUN SUMMARY ===\n"+
			"[%s] Scenario:   %s\n"+
			"[%s] Run:        %s\n"+
			"[%s] Milestones: %d\n"+
			"[%s] Passed:     %d\n"+
			"[%s] Failed:     %d\n"+
			"[%s] Duration:   %.1fs\n"+
			"[%s] Status:     %s\n"+
			"[%s] Completed at: %s\n",
		ts,
		ts, report.ScenarioID,
		ts, report.RunID,
		ts, len(report.Milestones),
		ts, passed,
		ts, failed,
		ts, report.Duration.Seconds(),
		ts, strings.ToUpper(report.Status),
		ts, time.Now().Format(time.RFC3339),
	)

	fl.writeRunLog(message)
}

// RunLogPath returns the path of the current run log file.
func (fl *FileLogger) RunLogPath() string {
	return fl.runFile
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}

	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
