package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jkeller/pilot/internal/driver"
	"github.com/jkeller/pilot/internal/models"
	"github.com/jkeller/pilot/internal/retry"
)

// Logger is the logging surface the orchestrator needs.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogMilestoneStart(milestone models.Milestone)
	LogMilestoneComplete(result models.MilestoneResult)
}

type noopLogger struct{}

func (noopLogger) LogDebug(string)                             {}
func (noopLogger) LogInfo(string)                              {}
func (noopLogger) LogWarn(string)                              {}
func (noopLogger) LogError(string)                             {}
func (noopLogger) LogMilestoneStart(models.Milestone)          {}
func (noopLogger) LogMilestoneComplete(models.MilestoneResult) {}
func (noopLogger) LogSessionEvent(string, string)              {}
func (noopLogger) LogSummary(models.RunReport)                 {}

// DriverProvider resolves a milestone's session reference to its driver.
type DriverProvider interface {
	DriverFor(sessionID string) (driver.Driver, error)
}

// MilestoneRunner executes one milestone to a terminal result.
type MilestoneRunner interface {
	ExecuteMilestone(ctx context.Context, milestone models.Milestone) models.MilestoneResult
}

// MilestoneExecutor runs a milestone's steps and wait conditions against its
// session. Steps retry individually with backoff; the milestone as a whole
// retries under the scenario's retry strategy.
type MilestoneExecutor struct {
	drivers    DriverProvider
	waits      *WaitEvaluator
	stepRetry  retry.Config
	retryDelay time.Duration
	maxRetries int
	strategy   string
	log        Logger
}

var _ MilestoneRunner = (*MilestoneExecutor)(nil)

// ExecutorOptions configures a MilestoneExecutor.
type ExecutorOptions struct {
	StepRetry  retry.Config
	RetryDelay time.Duration
	MaxRetries int
	Strategy   string
}

// NewMilestoneExecutor creates a MilestoneExecutor. log may be nil.
func NewMilestoneExecutor(drivers DriverProvider, opts ExecutorOptions, log Logger) *MilestoneExecutor {
	if log == nil {
		log = noopLogger{}
	}
	return &MilestoneExecutor{
		drivers:    drivers,
		waits:      NewWaitEvaluator(log),
		stepRetry:  opts.StepRetry,
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
		strategy:   opts.Strategy,
		log:        log,
	}
}

// ExecuteMilestone runs the milestone until it passes, exhausts its retry
// budget, or the context is cancelled. The returned result is always
// terminal.
func (e *MilestoneExecutor) ExecuteMilestone(ctx context.Context, milestone models.Milestone) models.MilestoneResult {
	result := models.MilestoneResult{
		MilestoneID: milestone.ID,
		Name:        milestone.Name,
		Status:      models.StatusRunning,
		StartTime:   time.Now(),
		Critical:    milestone.Critical,
		SessionID:   milestone.Session,
	}

	e.log.LogMilestoneStart(milestone)

	d, err := e.drivers.DriverFor(milestone.Session)
	if err != nil {
		result.Status = models.StatusFailed
		result.Error = NewMilestoneError(milestone.ID, "no session", err).Error()
		e.finish(&result)
		return result
	}

	attempts := 1
	if e.strategy == models.StrategyRetry {
		attempts += e.maxRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			result.RetryCount = attempt
			e.log.LogInfo(fmt.Sprintf("retrying milestone %s (attempt %d/%d)",
				milestone.ID, attempt+1, attempts))
			select {
			case <-ctx.Done():
				result.Status = models.StatusFailed
				result.Error = ctx.Err().Error()
				e.finish(&result)
				return result
			case <-time.After(e.retryDelay):
			}
		}

		// Each attempt starts clean; results from abandoned attempts are
		// not part of the milestone outcome.
		result.StepResults = nil
		result.WaitResults = nil
		result.Error = ""

		if e.runAttempt(ctx, d, milestone, &result) {
			result.Status = models.StatusPassed
			break
		}
		result.Status = models.StatusFailed

		if ctx.Err() != nil {
			break
		}
	}

	if milestone.Screenshot {
		if path, err := d.CaptureScreenshot(ctx, milestone.ID); err != nil {
			e.log.LogWarn(fmt.Sprintf("milestone %s: screenshot failed: %v", milestone.ID, err))
		} else {
			result.Screenshot = path
		}
	}

	e.finish(&result)
	return result
}

// runAttempt executes one full pass over the milestone's steps and wait
// conditions. Returns true when everything passed.
func (e *MilestoneExecutor) runAttempt(ctx context.Context, d driver.Driver, milestone models.Milestone, result *models.MilestoneResult) bool {
	for i, step := range milestone.Steps {
		desc := fmt.Sprintf("milestone %s step %d (%s)", milestone.ID, i+1, step.Action)

		var stepResult models.StepResult
		err := retry.Do(ctx, e.stepRetry, e.log, desc, func() error {
			var stepErr error
			stepResult, stepErr = d.ExecuteStep(ctx, step)
			return stepErr
		})

		if err != nil && step.Optional {
			stepResult.Skipped = true
			stepResult.Passed = false
			result.StepResults = append(result.StepResults, stepResult)
			e.log.LogWarn(fmt.Sprintf("%s failed, skipping optional step: %v", desc, err))
			continue
		}

		result.StepResults = append(result.StepResults, stepResult)
		if err != nil {
			result.Error = NewMilestoneError(milestone.ID,
				fmt.Sprintf("step %d (%s) failed", i+1, step.Action), err).Error()
			return false
		}
	}

	for _, cond := range milestone.WaitFor {
		waitResult := e.waits.Evaluate(ctx, d, cond)
		result.WaitResults = append(result.WaitResults, waitResult)
		if !waitResult.Passed {
			result.Error = NewMilestoneError(milestone.ID,
				fmt.Sprintf("wait condition %s failed", cond.Type),
				fmt.Errorf("%s", waitResult.Error)).Error()
			return false
		}
	}

	return true
}

// finish stamps the terminal timing fields.
func (e *MilestoneExecutor) finish(result *models.MilestoneResult) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	e.log.LogMilestoneComplete(*result)
}
