package models

import (
	"errors"
	"fmt"
	"time"
)

// Step action constants. The action set is closed: unknown actions are rejected
// at parse time rather than discovered during execution.
const (
	ActionClick      = "click"      // Click an element by selector
	ActionType       = "type"       // Type text into an element
	ActionKeys       = "keys"       // Send a keyboard shortcut (e.g. "ctrl+shift+p")
	ActionCommand    = "command"    // Run an IDE command through the command palette
	ActionOpenFile   = "openFile"   // Open a workspace file in the editor
	ActionWait       = "wait"       // Fixed delay
	ActionScreenshot = "screenshot" // Capture a screenshot artifact
	ActionEvaluate   = "evaluate"   // Evaluate a JS expression against the IDE surface
)

// KnownActions lists every supported step action.
var KnownActions = []string{
	ActionClick, ActionType, ActionKeys, ActionCommand,
	ActionOpenFile, ActionWait, ActionScreenshot, ActionEvaluate,
}

// Step is a single UI automation instruction inside a milestone.
type Step struct {
	Action   string        `yaml:"action"`
	Selector string        `yaml:"selector,omitempty"`
	Value    string        `yaml:"value,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Optional bool          `yaml:"optional,omitempty"` // Failure does not fail the milestone attempt
	Name     string        `yaml:"name,omitempty"`
}

// Validate checks the step against the closed action set and its
// action-specific required fields.
func (s *Step) Validate() error {
	switch s.Action {
	case ActionClick:
		if s.Selector == "" {
			return errors.New("click step requires a selector")
		}
	case ActionType:
		if s.Selector == "" {
			return errors.New("type step requires a selector")
		}
	case ActionKeys, ActionCommand, ActionEvaluate, ActionOpenFile:
		if s.Value == "" {
			return fmt.Errorf("%s step requires a value", s.Action)
		}
	case ActionWait:
		if s.Timeout <= 0 {
			return errors.New("wait step requires a positive timeout")
		}
	case ActionScreenshot:
		// No required fields.
	default:
		return fmt.Errorf("unknown step action %q (supported: %v)", s.Action, KnownActions)
	}
	return nil
}

// SessionSpec declares one IDE session a scenario needs.
type SessionSpec struct {
	ID            string `yaml:"id"`
	Variant       string `yaml:"variant,omitempty"`    // IDE variant/channel (e.g. "stable", "insiders")
	Executable    string `yaml:"executable,omitempty"` // Explicit executable path override
	Repository    string `yaml:"repository,omitempty"` // Repository to clone as the workspace
	WorkspacePath string `yaml:"workspace,omitempty"`  // Pre-existing workspace path
	FreshProfile  bool   `yaml:"fresh_profile,omitempty"`
}

// Scenario is a parsed end-to-end UI scenario definition.
type Scenario struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Description     string        `yaml:"description,omitempty"`
	Sessions        []SessionSpec `yaml:"sessions,omitempty"`
	Milestones      []Milestone   `yaml:"milestones"`
	FailureStrategy string        `yaml:"failure_strategy,omitempty"` // abort, retry, continue (default: abort)
	MaxRetries      int           `yaml:"max_retries,omitempty"`
	Evaluate        bool          `yaml:"evaluate,omitempty"` // Request LLM evaluation of the run report

	// FilePath is the absolute path of the scenario file, set by the parser.
	FilePath string `yaml:"-"`
}

// Validate checks scenario-level required fields, milestone validity,
// dependency references, session references, and dependency cycles.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return errors.New("scenario id is required")
	}
	if s.Name == "" {
		return errors.New("scenario name is required")
	}
	if len(s.Milestones) == 0 {
		return errors.New("scenario has no milestones")
	}

	switch s.FailureStrategy {
	case "", StrategyAbort, StrategyRetry, StrategyContinue:
	default:
		return fmt.Errorf("unknown failure strategy %q", s.FailureStrategy)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", s.MaxRetries)
	}

	sessions := make(map[string]bool, len(s.Sessions))
	for _, spec := range s.Sessions {
		if spec.ID == "" {
			return errors.New("session spec is missing an id")
		}
		if sessions[spec.ID] {
			return fmt.Errorf("duplicate session id %q", spec.ID)
		}
		if spec.Repository != "" && spec.WorkspacePath != "" {
			return fmt.Errorf("session %s: repository and workspace are mutually exclusive", spec.ID)
		}
		sessions[spec.ID] = true
	}

	seen := make(map[string]bool, len(s.Milestones))
	for i := range s.Milestones {
		m := &s.Milestones[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate milestone id %q", m.ID)
		}
		seen[m.ID] = true
		if m.Session != "" && len(s.Sessions) > 0 && !sessions[m.Session] {
			return fmt.Errorf("milestone %s references undeclared session %q", m.ID, m.Session)
		}
	}

	for _, m := range s.Milestones {
		for _, dep := range m.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("milestone %s (%s): depends on non-existent milestone %s", m.ID, m.Name, dep)
			}
		}
	}

	if HasCyclicDependencies(s.Milestones) {
		return errors.New("circular dependency detected in milestones")
	}

	return nil
}

// Strategy returns the effective failure strategy, defaulting to abort.
func (s *Scenario) Strategy() string {
	if s.FailureStrategy == "" {
		return StrategyAbort
	}
	return s.FailureStrategy
}

// Milestone returns the milestone with the given ID, or nil.
func (s *Scenario) Milestone(id string) *Milestone {
	for i := range s.Milestones {
		if s.Milestones[i].ID == id {
			return &s.Milestones[i]
		}
	}
	return nil
}
