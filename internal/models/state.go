package models

import "time"

// OrchestratorState is the checkpointed progress of a scenario run. It is
// persisted as a whole-state JSON overwrite at a fixed interval and at run end,
// and loaded at run start when a prior checkpoint exists for the scenario.
//
// Invariant: CompletedMilestones and FailedMilestones are disjoint.
type OrchestratorState struct {
	RunID               string                     `json:"run_id"`
	ScenarioID          string                     `json:"scenario_id"`
	StartTime           time.Time                  `json:"start_time"`
	CompletedMilestones []string                   `json:"completed_milestones"`
	FailedMilestones    []string                   `json:"failed_milestones"`
	MilestoneResults    map[string]MilestoneResult `json:"milestone_results"`
	Sessions            []SessionRecord            `json:"sessions,omitempty"`
	LastCheckpointTime  time.Time                  `json:"last_checkpoint_time"`
}

// NewOrchestratorState creates an empty state for a fresh run.
func NewOrchestratorState(runID, scenarioID string) *OrchestratorState {
	return &OrchestratorState{
		RunID:            runID,
		ScenarioID:       scenarioID,
		StartTime:        time.Now(),
		MilestoneResults: make(map[string]MilestoneResult),
	}
}

// IsCompleted reports whether the milestone ID is recorded as completed.
func (s *OrchestratorState) IsCompleted(id string) bool {
	return contains(s.CompletedMilestones, id)
}

// IsFailed reports whether the milestone ID is recorded as failed.
func (s *OrchestratorState) IsFailed(id string) bool {
	return contains(s.FailedMilestones, id)
}

// MarkCompleted records a milestone as completed, preserving the disjointness
// invariant and ignoring duplicates.
func (s *OrchestratorState) MarkCompleted(id string) {
	if s.IsCompleted(id) || s.IsFailed(id) {
		return
	}
	s.CompletedMilestones = append(s.CompletedMilestones, id)
}

// MarkFailed records a milestone as failed, preserving the disjointness
// invariant and ignoring duplicates.
func (s *OrchestratorState) MarkFailed(id string) {
	if s.IsCompleted(id) || s.IsFailed(id) {
		return
	}
	s.FailedMilestones = append(s.FailedMilestones, id)
}

// Seen reports whether the milestone already reached a terminal state in this
// state, completed or failed.
func (s *OrchestratorState) Seen(id string) bool {
	return s.IsCompleted(id) || s.IsFailed(id)
}

// Snapshot returns a deep copy safe to serialize while the original keeps
// mutating on the scheduling goroutine.
func (s *OrchestratorState) Snapshot() *OrchestratorState {
	cp := &OrchestratorState{
		RunID:               s.RunID,
		ScenarioID:          s.ScenarioID,
		StartTime:           s.StartTime,
		CompletedMilestones: append([]string(nil), s.CompletedMilestones...),
		FailedMilestones:    append([]string(nil), s.FailedMilestones...),
		MilestoneResults:    make(map[string]MilestoneResult, len(s.MilestoneResults)),
		Sessions:            append([]SessionRecord(nil), s.Sessions...),
		LastCheckpointTime:  s.LastCheckpointTime,
	}
	for id, res := range s.MilestoneResults {
		res.StepResults = append([]StepResult(nil), res.StepResults...)
		res.WaitResults = append([]WaitResult(nil), res.WaitResults...)
		cp.MilestoneResults[id] = res
	}
	return cp
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
