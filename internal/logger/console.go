// Package logger provides logging implementations for pilot runs.
//
// Loggers report scenario progress at the milestone and summary levels.
// Implementations are thread-safe and support console and file destinations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/jkeller/pilot/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled for TTY output on os.Stdout/os.Stderr.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum log level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		mutex:       sync.Mutex{},
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if f != os.Stdout && f != os.Stderr {
		return false
	}
	// color.NoColor honors the NO_COLOR convention.
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorizeLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	cl.writer.Write([]byte(formatted))
}

func colorizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogMilestoneStart logs the start of a milestone at INFO level.
// Format: "[HH:MM:SS] Starting <name>: <n> steps, <n> wait conditions"
func (cl *ConsoleLogger) LogMilestoneStart(milestone models.Milestone) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	name := milestone.Name
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(name)
	}
	message := fmt.Sprintf("[%s] Starting %s: %d steps, %d wait conditions\n",
		ts, name, len(milestone.Steps), len(milestone.WaitFor))
	cl.writer.Write([]byte(message))
}

// LogMilestoneComplete logs the outcome of a milestone at INFO level.
// Format: "[HH:MM:SS] <name> passed (<duration>)" or
// "[HH:MM:SS] <name> failed after <n> retries (<duration>): <error>"
func (cl *ConsoleLogger) LogMilestoneComplete(result models.MilestoneResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	durationStr := formatDuration(result.Duration)

	name := result.Name
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(name)
	}

	var message string
	if result.Status == models.StatusPassed {
		passed := "passed"
		if cl.colorOutput {
			passed = color.New(color.FgGreen).Sprint(passed)
		}
		message = fmt.Sprintf("[%s] %s %s (%s)\n", ts, name, passed, durationStr)
	} else {
		failed := "failed"
		if cl.colorOutput {
			failed = color.New(color.FgRed).Sprint(failed)
		}
		if result.RetryCount > 0 {
			message = fmt.Sprintf("[%s] %s %s after %d retries (%s): %s\n",
				ts, name, failed, result.RetryCount, durationStr, result.Error)
		} else {
			message = fmt.Sprintf("[%s] %s %s (%s): %s\n", ts, name, failed, durationStr, result.Error)
		}
	}

	cl.writer.Write([]byte(message))
}

// LogSessionEvent logs a session lifecycle event at INFO level.
// Format: "[HH:MM:SS] [session <id>] <event>"
func (cl *ConsoleLogger) LogSessionEvent(sessionID, event string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	tag := fmt.Sprintf("session %s", sessionID)
	if cl.colorOutput {
		tag = color.New(color.FgMagenta).Sprint(tag)
	}
	cl.writer.Write([]byte(fmt.Sprintf("[%s] [%s] %s\n", ts, tag, event)))
}

// LogSummary logs the run summary with milestone statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(report models.RunReport) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	passed, failed := countMilestones(report)
	durationStr := formatDuration(report.Duration)

	var output string
	if cl.colorOutput {
		header := color.New(color.Bold).Sprint("=== Run Summary ===")
		output = fmt.Sprintf("[%s] %s\n", ts, header)
		output += fmt.Sprintf("[%s] Scenario: %s (run %s)\n", ts, report.ScenarioID, report.RunID)
		output += fmt.Sprintf("[%s] Milestones: %d\n", ts, len(report.Milestones))
		output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgGreen).Sprintf("Passed: %d", passed))
		if failed > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgRed).Sprintf("Failed: %d", failed))
		} else {
			output += fmt.Sprintf("[%s] Failed: %d\n", ts, failed)
		}
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)

		statusText := strings.ToUpper(report.Status)
		if report.Passed() {
			statusText = color.New(color.FgGreen).Sprint(statusText)
		} else {
			statusText = color.New(color.FgRed).Sprint(statusText)
		}
		output += fmt.Sprintf("[%s] Status: %s\n", ts, statusText)

		if failed > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgRed).Sprint("Failed milestones:"))
			for _, m := range report.Milestones {
				if m.Status == models.StatusFailed {
					name := color.New(color.FgRed).Sprint(m.Name)
					output += fmt.Sprintf("[%s]   - %s: %s\n", ts, name, m.Error)
				}
			}
		}
	} else {
		output = fmt.Sprintf("[%s] === Run Summary ===\n", ts)
		output += fmt.Sprintf("[%s] Scenario: %s (run %s)\n", ts, report.ScenarioID, report.RunID)
		output += fmt.Sprintf("[%s] Milestones: %d\n", ts, len(report.Milestones))
		output += fmt.Sprintf("[%s] Passed: %d\n", ts, passed)
		output += fmt.Sprintf("[%s] Failed: %d\n", ts, failed)
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)
		output += fmt.Sprintf("[%s] Status: %s\n", ts, strings.ToUpper(report.Status))

		if failed > 0 {
			output += fmt.Sprintf("[%s] Failed milestones:\n", ts)
			for _, m := range report.Milestones {
				if m.Status == models.StatusFailed {
					output += fmt.Sprintf("[%s]   - %s: %s\n", ts, m.Name, m.Error)
				}
			}
		}
	}

	cl.writer.Write([]byte(output))
}

func countMilestones(report models.RunReport) (passed, failed int) {
	for _, m := range report.Milestones {
		switch m.Status {
		case models.StatusPassed:
			passed++
		case models.StatusFailed:
			failed++
		}
	}
	return passed, failed
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, remainder/time.Second)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, remainder/time.Second)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger discards all log messages. Useful for testing.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(message string)                            {}
func (n *NoOpLogger) LogDebug(message string)                            {}
func (n *NoOpLogger) LogInfo(message string)                             {}
func (n *NoOpLogger) LogWarn(message string)                             {}
func (n *NoOpLogger) LogError(message string)                            {}
func (n *NoOpLogger) LogMilestoneStart(milestone models.Milestone)       {}
func (n *NoOpLogger) LogMilestoneComplete(result models.MilestoneResult) {}
func (n *NoOpLogger) LogSessionEvent(sessionID, event string)            {}
func (n *NoOpLogger) LogSummary(report models.RunReport)                 {}
