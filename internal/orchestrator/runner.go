package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jkeller/pilot/internal/checkpoint"
	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/driver"
	"github.com/jkeller/pilot/internal/models"
	"github.com/jkeller/pilot/internal/retry"
	"github.com/jkeller/pilot/internal/session"
	"github.com/jkeller/pilot/internal/workspace"
)

// RunLogger is the full logging surface a run needs.
type RunLogger interface {
	Logger
	LogSessionEvent(sessionID, event string)
	LogSummary(report models.RunReport)
}

// sessionDrivers adapts the session manager to the executor's driver lookup.
// Crashed sessions fail the lookup so milestones against them terminate
// instead of timing out step by step.
type sessionDrivers struct {
	manager *session.Manager
}

func (p sessionDrivers) DriverFor(sessionID string) (driver.Driver, error) {
	s, err := p.manager.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Crashed() {
		return nil, NewSessionError(s.ID, "session has crashed", nil)
	}
	return s.Driver(), nil
}

// Runner drives a whole scenario run: session provisioning, checkpoint
// resume, milestone scheduling, and teardown.
type Runner struct {
	cfg         *config.Config
	launcher    session.Launcher
	checkpoints *checkpoint.Store
	log         RunLogger
}

// NewRunner creates a Runner. launcher may be nil, in which case IDE
// processes are launched directly; checkpoints may be nil to disable
// persistence; log may be nil.
func NewRunner(cfg *config.Config, launcher session.Launcher, checkpoints *checkpoint.Store, log RunLogger) *Runner {
	if log == nil {
		log = noopLogger{}
	}
	if launcher == nil {
		launcher = session.NewIDELauncher(cfg.Session, cfg.ScreenshotDir, log)
	}
	return &Runner{
		cfg:         cfg,
		launcher:    launcher,
		checkpoints: checkpoints,
		log:         log,
	}
}

// Run executes the scenario and returns its report. The report is valid even
// when err is non-nil: a failed run still reports the milestones that did
// run.
func (r *Runner) Run(ctx context.Context, scenario *models.Scenario) (models.RunReport, error) {
	if err := scenario.Validate(); err != nil {
		return models.RunReport{ScenarioID: scenario.ID, Scenario: scenario.Name, Status: models.StatusFailed, Error: err.Error()},
			fmt.Errorf("invalid scenario: %w", err)
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	state, resumed := r.loadState(runID, scenario)

	r.log.LogInfo(fmt.Sprintf("run %s: scenario %q (%d milestones)", runID, scenario.Name, len(scenario.Milestones)))

	resolver := workspace.NewResolver(filepath.Join(os.TempDir(), "pilot-workspaces"), r.log)
	defer func() {
		if err := resolver.Cleanup(); err != nil {
			r.log.LogWarn(fmt.Sprintf("workspace cleanup: %v", err))
		}
	}()

	manager := session.NewManager(r.cfg.Session, r.launcher, resolver, r.log)
	manager.OnCrash(func(sessionID string, consoleErrors []string) {
		r.log.LogError(fmt.Sprintf("session %s crashed; last console errors:\n%s",
			sessionID, formatConsoleErrors(consoleErrors)))
	})

	if err := manager.StartAll(ctx, scenario.Sessions); err != nil {
		report := r.report(scenario, state, resumed, err)
		return report, fmt.Errorf("session startup: %w", err)
	}
	defer manager.TeardownAll()

	executor := NewMilestoneExecutor(sessionDrivers{manager: manager}, ExecutorOptions{
		StepRetry: retry.Config{
			MaxAttempts:       r.cfg.StepRetry.MaxAttempts,
			InitialDelay:      r.cfg.StepRetry.InitialDelay,
			BackoffMultiplier: r.cfg.StepRetry.BackoffMultiplier,
			MaxDelay:          r.cfg.StepRetry.MaxDelay,
		},
		RetryDelay: r.cfg.RetryDelay,
		MaxRetries: scenario.MaxRetries,
		Strategy:   scenario.Strategy(),
	}, r.log)

	scheduler := NewScheduler(executor, r.schedulerCheckpoints(), SchedulerOptions{
		CheckpointInterval: r.cfg.CheckpointInterval,
		Strategy:           scenario.Strategy(),
	}, r.log)

	runErr := scheduler.Run(ctx, scenario, state)
	if errors.Is(runErr, context.DeadlineExceeded) {
		runErr = NewTimeoutError(fmt.Sprintf("run %s", runID), r.cfg.Timeout)
	}

	state.Sessions = manager.Records()

	report := r.report(scenario, state, resumed, runErr)
	r.log.LogSummary(report)

	if report.Passed() && r.checkpoints != nil {
		if err := r.checkpoints.Delete(scenario.ID); err != nil {
			r.log.LogWarn(fmt.Sprintf("checkpoint delete: %v", err))
		}
	}

	return report, runErr
}

// loadState returns the run state: a resumed checkpoint when resume is
// enabled and a usable checkpoint exists, a fresh state otherwise. A resumed
// state keeps its terminal milestone results but always gets a new run ID.
func (r *Runner) loadState(runID string, scenario *models.Scenario) (*models.OrchestratorState, bool) {
	if !r.cfg.Resume || r.checkpoints == nil {
		return models.NewOrchestratorState(runID, scenario.ID), false
	}

	state, err := r.checkpoints.Load(scenario.ID)
	if err != nil {
		r.log.LogWarn(fmt.Sprintf("checkpoint load: %v", err))
	}
	if state == nil {
		return models.NewOrchestratorState(runID, scenario.ID), false
	}

	state.RunID = runID
	for id, result := range state.MilestoneResults {
		result.Recovered = true
		state.MilestoneResults[id] = result
	}

	r.log.LogInfo(fmt.Sprintf("resuming scenario %s: %d milestones already terminal",
		scenario.ID, len(state.CompletedMilestones)+len(state.FailedMilestones)))
	return state, true
}

// schedulerCheckpoints returns the saver the scheduler should use, or nil
// when persistence is disabled.
func (r *Runner) schedulerCheckpoints() CheckpointSaver {
	if r.checkpoints == nil {
		return nil
	}
	return r.checkpoints
}

// report assembles the run report from the terminal state. Milestone results
// appear in scenario declaration order.
func (r *Runner) report(scenario *models.Scenario, state *models.OrchestratorState, resumed bool, runErr error) models.RunReport {
	now := time.Now()
	report := models.RunReport{
		RunID:      state.RunID,
		ScenarioID: scenario.ID,
		Scenario:   scenario.Name,
		StartTime:  state.StartTime,
		EndTime:    now,
		Duration:   now.Sub(state.StartTime),
		Sessions:   state.Sessions,
		Resumed:    resumed,
	}

	criticalFailed := false
	for i := range scenario.Milestones {
		result, ok := state.MilestoneResults[scenario.Milestones[i].ID]
		if !ok {
			continue
		}
		report.Milestones = append(report.Milestones, result)
		if result.Status == models.StatusFailed && result.Critical {
			criticalFailed = true
		}
	}

	if criticalFailed || runErr != nil {
		report.Status = models.StatusFailed
	} else {
		report.Status = models.StatusPassed
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	return report
}

// formatConsoleErrors renders the console error tail for crash logging.
func formatConsoleErrors(consoleErrors []string) string {
	if len(consoleErrors) == 0 {
		return "  (none captured)"
	}
	const tail = 10
	if len(consoleErrors) > tail {
		consoleErrors = consoleErrors[len(consoleErrors)-tail:]
	}
	return "  " + strings.Join(consoleErrors, "\n  ")
}
