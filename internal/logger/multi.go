package logger

import "github.com/jkeller/pilot/internal/models"

// Logger is the full set of run logging operations implemented by the
// loggers in this package. Consumers that need less declare their own
// narrower interfaces.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogMilestoneStart(milestone models.Milestone)
	LogMilestoneComplete(result models.MilestoneResult)
	LogSessionEvent(sessionID, event string)
	LogSummary(report models.RunReport)
}

// MultiLogger fans each log call out to every wrapped logger in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger wrapping the given loggers.
// Nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	filtered := make([]Logger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	return &MultiLogger{loggers: filtered}
}

func (m *MultiLogger) LogTrace(message string) {
	for _, l := range m.loggers {
		l.LogTrace(message)
	}
}

func (m *MultiLogger) LogDebug(message string) {
	for _, l := range m.loggers {
		l.LogDebug(message)
	}
}

func (m *MultiLogger) LogInfo(message string) {
	for _, l := range m.loggers {
		l.LogInfo(message)
	}
}

func (m *MultiLogger) LogWarn(message string) {
	for _, l := range m.loggers {
		l.LogWarn(message)
	}
}

func (m *MultiLogger) LogError(message string) {
	for _, l := range m.loggers {
		l.LogError(message)
	}
}

func (m *MultiLogger) LogMilestoneStart(milestone models.Milestone) {
	for _, l := range m.loggers {
		l.LogMilestoneStart(milestone)
	}
}

func (m *MultiLogger) LogMilestoneComplete(result models.MilestoneResult) {
	for _, l := range m.loggers {
		l.LogMilestoneComplete(result)
	}
}

func (m *MultiLogger) LogSessionEvent(sessionID, event string) {
	for _, l := range m.loggers {
		l.LogSessionEvent(sessionID, event)
	}
}

func (m *MultiLogger) LogSummary(report models.RunReport) {
	for _, l := range m.loggers {
		l.LogSummary(report)
	}
}

var (
	_ Logger = (*ConsoleLogger)(nil)
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
	_ Logger = (*MultiLogger)(nil)
)
