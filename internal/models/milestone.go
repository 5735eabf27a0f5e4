package models

import (
	"errors"
	"fmt"
	"time"
)

// Failure strategy constants controlling how a run reacts to milestone failure.
const (
	StrategyAbort    = "abort"    // Critical failure terminates the run immediately
	StrategyRetry    = "retry"    // Failed attempts are retried up to MaxRetries
	StrategyContinue = "continue" // Failures are recorded, run continues
)

// Wait condition type constants.
const (
	WaitElementPresent      = "element-present"
	WaitTextPresent         = "text-present"
	WaitNotificationPresent = "notification-present"
	WaitFixedTimeout        = "fixed-timeout"
	WaitManualConfirmation  = "manual-confirmation"
	WaitAgentComplete       = "agent-complete"
)

// WaitCondition is a polled predicate with a timeout, used to synchronize a
// milestone on externally observable IDE state.
type WaitCondition struct {
	Type         string        `yaml:"type"`
	Target       string        `yaml:"target,omitempty"`   // Selector or surface identifier (type-dependent)
	Expected     string        `yaml:"expected,omitempty"` // Text/value to match (optional)
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	Description  string        `yaml:"description,omitempty"`
}

// Validate checks the wait condition type and the poll/timeout relationship.
func (w *WaitCondition) Validate() error {
	switch w.Type {
	case WaitElementPresent, WaitTextPresent, WaitNotificationPresent,
		WaitFixedTimeout, WaitManualConfirmation, WaitAgentComplete:
	default:
		return fmt.Errorf("unknown wait condition type %q", w.Type)
	}
	if w.Timeout < 0 || w.PollInterval < 0 {
		return errors.New("wait condition timeout and poll_interval must be >= 0")
	}
	if w.Timeout > 0 && w.PollInterval >= w.Timeout {
		return fmt.Errorf("wait condition poll_interval (%s) must be less than timeout (%s)", w.PollInterval, w.Timeout)
	}
	return nil
}

// Milestone represents a named, dependency-ordered unit of orchestrated work.
// Milestones are created from the scenario definition at run start and are
// immutable during execution; the scheduler references them, never copies.
type Milestone struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Session    string          `yaml:"session,omitempty"` // Session ID to execute against (default: first declared session)
	Steps      []Step          `yaml:"steps"`
	DependsOn  []string        `yaml:"depends_on,omitempty"` // Milestone IDs that must reach a terminal state first
	Parallel   bool            `yaml:"parallel,omitempty"`   // May run concurrently with other ready milestones
	Critical   bool            `yaml:"critical,omitempty"`   // Failure affects overall run success
	WaitFor    []WaitCondition `yaml:"wait_for,omitempty"`
	Screenshot bool            `yaml:"screenshot,omitempty"` // Capture a screenshot after the milestone passes
}

// Validate checks that the milestone has all required fields.
func (m *Milestone) Validate() error {
	if m.ID == "" {
		return errors.New("milestone id is required")
	}
	if m.Name == "" {
		return errors.New("milestone name is required")
	}
	if len(m.Steps) == 0 && len(m.WaitFor) == 0 {
		return fmt.Errorf("milestone %s: at least one step or wait condition is required", m.ID)
	}
	for i := range m.Steps {
		if err := m.Steps[i].Validate(); err != nil {
			return fmt.Errorf("milestone %s: step %d: %w", m.ID, i+1, err)
		}
	}
	for i := range m.WaitFor {
		if err := m.WaitFor[i].Validate(); err != nil {
			return fmt.Errorf("milestone %s: wait %d: %w", m.ID, i+1, err)
		}
	}
	return nil
}

// HasCyclicDependencies detects circular dependencies in a milestone set
// using DFS with color marking (white=unvisited, gray=visiting, black=visited).
func HasCyclicDependencies(milestones []Milestone) bool {
	graph := make(map[string][]string)
	known := make(map[string]bool)

	for _, m := range milestones {
		known[m.ID] = true
		graph[m.ID] = []string{}
	}

	// Edges run prerequisite -> dependent.
	for _, m := range milestones {
		for _, dep := range m.DependsOn {
			if dep == m.ID {
				return true
			}
			if known[dep] {
				graph[dep] = append(graph[dep], m.ID)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)

	colors := make(map[string]int)
	for id := range known {
		colors[id] = white
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range known {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}

	return false
}
