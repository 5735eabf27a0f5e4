package models

import "time"

// Milestone execution status constants.
const (
	StatusRunning = "running"
	StatusWaiting = "waiting"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// StepResult represents the outcome of a single automation step.
type StepResult struct {
	Action   string        `json:"action"`
	Name     string        `json:"name,omitempty"`
	Passed   bool          `json:"passed"`
	Skipped  bool          `json:"skipped,omitempty"` // Optional step that failed and was skipped
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Logs     []string      `json:"logs,omitempty"`
}

// WaitResult represents the outcome of a single wait condition.
type WaitResult struct {
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Passed      bool          `json:"passed"`
	WaitTime    time.Duration `json:"wait_time"`
	Evidence    string        `json:"evidence,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// MilestoneResult represents the result of executing a single milestone.
// It is mutated only by the goroutine executing that milestone and its status
// becomes terminal (passed/failed) exactly once.
type MilestoneResult struct {
	MilestoneID string        `json:"milestone_id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	StepResults []StepResult  `json:"step_results,omitempty"`
	WaitResults []WaitResult  `json:"wait_results,omitempty"`
	RetryCount  int           `json:"retry_count"`
	Error       string        `json:"error,omitempty"`
	Screenshot  string        `json:"screenshot,omitempty"`
	Critical    bool          `json:"critical"`
	SessionID   string        `json:"session_id,omitempty"`
	Recovered   bool          `json:"recovered,omitempty"` // Result was restored from a checkpoint or crash salvage
}

// Terminal reports whether the milestone has reached a final state.
func (r *MilestoneResult) Terminal() bool {
	return r.Status == StatusPassed || r.Status == StatusFailed
}

// RunReport is the aggregate outcome of one orchestrated scenario run.
// The report always has a terminal status, even for aborted runs.
type RunReport struct {
	RunID      string            `json:"run_id"`
	ScenarioID string            `json:"scenario_id"`
	Scenario   string            `json:"scenario_name"`
	Status     string            `json:"status"` // passed or failed
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Duration   time.Duration     `json:"duration"`
	Milestones []MilestoneResult `json:"milestones"`
	Sessions   []SessionRecord   `json:"sessions,omitempty"`
	Error      string            `json:"error,omitempty"`
	Resumed    bool              `json:"resumed,omitempty"`
}

// Passed reports whether the run reached terminal status passed.
func (r *RunReport) Passed() bool {
	return r.Status == StatusPassed
}

// SessionRecord captures the lifecycle of one IDE session during a run.
type SessionRecord struct {
	ID            string    `json:"id"`
	WorkspacePath string    `json:"workspace_path,omitempty"`
	LaunchedAt    time.Time `json:"launched_at"`
	Crashed       bool      `json:"crashed,omitempty"`
}
