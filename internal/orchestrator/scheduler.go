package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jkeller/pilot/internal/models"
)

// defaultCheckpointInterval is used when the scheduler is configured without
// an explicit interval.
const defaultCheckpointInterval = 30 * time.Second

// CheckpointSaver persists run state. Saves happen on the scheduling
// goroutine only.
type CheckpointSaver interface {
	Save(state *models.OrchestratorState) error
}

// Scheduler walks a scenario's milestone dependency graph, dispatching ready
// milestones to the runner and recording terminal results into the run state.
//
// A milestone is ready when every milestone it depends on has reached a
// terminal state. Failed dependencies still unblock their dependents; a
// dependent that cannot tolerate a failed prerequisite expresses that through
// the failure strategy, not through the graph.
type Scheduler struct {
	runner             MilestoneRunner
	checkpoints        CheckpointSaver
	checkpointInterval time.Duration
	strategy           string
	log                Logger
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	CheckpointInterval time.Duration
	Strategy           string
}

// NewScheduler creates a Scheduler. checkpoints and log may be nil.
func NewScheduler(runner MilestoneRunner, checkpoints CheckpointSaver, opts SchedulerOptions, log Logger) *Scheduler {
	if log == nil {
		log = noopLogger{}
	}
	interval := opts.CheckpointInterval
	if interval <= 0 {
		interval = defaultCheckpointInterval
	}
	return &Scheduler{
		runner:             runner,
		checkpoints:        checkpoints,
		checkpointInterval: interval,
		strategy:           opts.Strategy,
		log:                log,
	}
}

// Run executes the scenario's milestones until every milestone is terminal,
// the context is cancelled, or a critical failure aborts the run. Milestones
// already terminal in state are not re-executed.
func (s *Scheduler) Run(ctx context.Context, scenario *models.Scenario, state *models.OrchestratorState) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := make(map[string]*models.Milestone)
	for i := range scenario.Milestones {
		m := &scenario.Milestones[i]
		if state.Seen(m.ID) {
			continue
		}
		pending[m.ID] = m
	}

	executing := make(map[string]bool)
	seqInFlight := false
	results := make(chan models.MilestoneResult, len(pending))
	var inFlight sync.WaitGroup

	checkpointTicker := time.NewTicker(s.checkpointInterval)
	defer checkpointTicker.Stop()

	var abortErr error

	for len(pending) > 0 || len(executing) > 0 {
		if err := runCtx.Err(); err != nil {
			inFlight.Wait()
			s.drain(results, state, pending, executing)
			s.save(state)
			if abortErr != nil {
				return abortErr
			}
			return err
		}

		launched := 0
		if !seqInFlight {
			for _, m := range s.ready(scenario, state, pending, executing) {
				if !m.Parallel {
					// Sequential milestones run alone: they wait for the
					// in-flight set to drain and block new starts until done.
					if len(executing) > 0 || launched > 0 {
						continue
					}
					seqInFlight = true
				}
				executing[m.ID] = true
				launched++
				inFlight.Add(1)
				go func(m models.Milestone) {
					defer inFlight.Done()
					results <- s.runner.ExecuteMilestone(runCtx, m)
				}(*m)
				if seqInFlight {
					break
				}
			}
		}

		if len(executing) == 0 {
			if launched == 0 && len(pending) > 0 {
				// Nothing runnable and nothing in flight: the remaining
				// milestones can never become ready. Stop rather than spin.
				s.log.LogWarn(fmt.Sprintf("no runnable milestones remain, %d left unscheduled", len(pending)))
				break
			}
			if len(pending) == 0 {
				break
			}
		}

		// Wait for the next terminal result, not for the whole wave.
		select {
		case <-runCtx.Done():
			inFlight.Wait()
			s.drain(results, state, pending, executing)
			s.save(state)
			if abortErr != nil {
				return abortErr
			}
			return runCtx.Err()

		case <-checkpointTicker.C:
			s.save(state)

		case result := <-results:
			delete(executing, result.MilestoneID)
			delete(pending, result.MilestoneID)
			if m := scenario.Milestone(result.MilestoneID); m != nil && !m.Parallel {
				seqInFlight = false
			}
			s.record(state, result)
			s.save(state)

			if result.Status == models.StatusFailed && result.Critical && s.strategy == models.StrategyAbort {
				abortErr = NewMilestoneError(result.MilestoneID, "critical milestone failed, aborting run",
					fmt.Errorf("%s", result.Error))
				s.log.LogError(abortErr.Error())
				cancel()
			}
		}
	}

	inFlight.Wait()
	s.drain(results, state, pending, executing)
	s.save(state)
	return abortErr
}

// ready returns the pending milestones whose dependencies are all terminal,
// in scenario declaration order.
func (s *Scheduler) ready(scenario *models.Scenario, state *models.OrchestratorState, pending map[string]*models.Milestone, executing map[string]bool) []*models.Milestone {
	var out []*models.Milestone
	for i := range scenario.Milestones {
		m := &scenario.Milestones[i]
		if _, ok := pending[m.ID]; !ok {
			continue
		}
		if executing[m.ID] {
			continue
		}
		satisfied := true
		for _, dep := range m.DependsOn {
			if !state.Seen(dep) {
				satisfied = false
				break
			}
		}
		if satisfied {
			out = append(out, m)
		}
	}
	return out
}

// record folds a terminal milestone result into the run state.
func (s *Scheduler) record(state *models.OrchestratorState, result models.MilestoneResult) {
	state.MilestoneResults[result.MilestoneID] = result
	if result.Status == models.StatusPassed {
		state.MarkCompleted(result.MilestoneID)
	} else {
		state.MarkFailed(result.MilestoneID)
	}
}

// drain records any results that arrived after the loop decided to stop.
func (s *Scheduler) drain(results chan models.MilestoneResult, state *models.OrchestratorState, pending map[string]*models.Milestone, executing map[string]bool) {
	for {
		select {
		case result := <-results:
			delete(executing, result.MilestoneID)
			delete(pending, result.MilestoneID)
			s.record(state, result)
		default:
			return
		}
	}
}

// save writes a checkpoint; failures are logged, never fatal to the run.
func (s *Scheduler) save(state *models.OrchestratorState) {
	if s.checkpoints == nil {
		return
	}
	if err := s.checkpoints.Save(state); err != nil {
		s.log.LogWarn(fmt.Sprintf("checkpoint save failed: %v", err))
	}
}
