package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jkeller/pilot/internal/driver"
	"github.com/jkeller/pilot/internal/models"
)

// Default wait polling parameters for conditions that don't set their own.
const (
	defaultWaitTimeout      = 30 * time.Second
	defaultPollInterval     = time.Second
	defaultProgressInterval = 5 * time.Second
)

// agentCompleteState is the agent panel state that satisfies an
// agent-complete wait.
const agentCompleteState = "complete"

// WaitEvaluator polls wait conditions against a session until they are
// satisfied or time out. Evaluation never returns an error: a condition
// that cannot be satisfied produces a failed WaitResult.
type WaitEvaluator struct {
	log              Logger
	progressInterval time.Duration
}

// NewWaitEvaluator creates a WaitEvaluator. log may be nil.
func NewWaitEvaluator(log Logger) *WaitEvaluator {
	if log == nil {
		log = noopLogger{}
	}
	return &WaitEvaluator{log: log, progressInterval: defaultProgressInterval}
}

// Evaluate blocks until the condition is satisfied, its timeout elapses, or
// the context is cancelled.
func (e *WaitEvaluator) Evaluate(ctx context.Context, d driver.Driver, cond models.WaitCondition) models.WaitResult {
	start := time.Now()
	result := models.WaitResult{
		Type:        cond.Type,
		Description: cond.Description,
	}

	timeout := cond.Timeout
	if timeout == 0 {
		timeout = defaultWaitTimeout
	}
	poll := cond.PollInterval
	if poll == 0 {
		poll = defaultPollInterval
	}

	switch cond.Type {
	case models.WaitFixedTimeout:
		// A fixed timeout is a pure delay, not a condition that can fail.
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
		case <-time.After(timeout):
			result.Passed = true
		}
		result.WaitTime = time.Since(start)
		return result

	case models.WaitManualConfirmation:
		// No interactive confirmation surface exists yet, so the condition
		// is logged and treated as immediately satisfied.
		e.log.LogWarn(fmt.Sprintf("manual confirmation %q auto-approved", cond.Description))
		result.Passed = true
		result.Evidence = "auto-approved"
		result.WaitTime = time.Since(start)
		return result
	}

	deadline := time.Now().Add(timeout)
	lastProgress := start

	for {
		satisfied, evidence, err := e.probe(ctx, d, cond)
		if err != nil {
			// Probe errors are treated as not-yet-satisfied; the surface may
			// still be rendering.
			e.log.LogDebug(fmt.Sprintf("wait %s probe error: %v", cond.Type, err))
		}
		if satisfied {
			result.Passed = true
			result.Evidence = evidence
			result.WaitTime = time.Since(start)
			return result
		}

		if time.Now().After(deadline) {
			result.WaitTime = time.Since(start)
			result.Error = fmt.Sprintf("Timeout after %dms", timeout.Milliseconds())
			return result
		}

		if time.Since(lastProgress) >= e.progressInterval {
			e.log.LogDebug(fmt.Sprintf("still waiting for %s (%s elapsed)",
				describeCondition(cond), time.Since(start).Round(time.Second)))
			lastProgress = time.Now()
		}

		select {
		case <-ctx.Done():
			result.WaitTime = time.Since(start)
			result.Error = ctx.Err().Error()
			return result
		case <-time.After(poll):
		}
	}
}

// probe performs a single check of a pollable condition.
func (e *WaitEvaluator) probe(ctx context.Context, d driver.Driver, cond models.WaitCondition) (bool, string, error) {
	switch cond.Type {
	case models.WaitElementPresent:
		visible, err := d.ElementVisible(ctx, cond.Target)
		if err != nil {
			return false, "", err
		}
		if visible {
			return true, fmt.Sprintf("element %s visible", cond.Target), nil
		}
		return false, "", nil

	case models.WaitTextPresent:
		selector := cond.Target
		if selector == "" {
			selector = "body"
		}
		text, err := d.ElementText(ctx, selector)
		if err != nil {
			return false, "", err
		}
		if strings.Contains(text, cond.Expected) {
			return true, fmt.Sprintf("text %q present", cond.Expected), nil
		}
		return false, "", nil

	case models.WaitNotificationPresent:
		notifications, err := d.Notifications(ctx)
		if err != nil {
			return false, "", err
		}
		for _, n := range notifications {
			if cond.Expected == "" || strings.Contains(n, cond.Expected) {
				return true, fmt.Sprintf("notification %q", n), nil
			}
		}
		return false, "", nil

	case models.WaitAgentComplete:
		state, err := d.AgentState(ctx)
		if err != nil {
			return false, "", err
		}
		if state == agentCompleteState {
			return true, "agent reported complete", nil
		}
		return false, "", nil

	default:
		// Unknown types are rejected at parse time.
		return false, "", fmt.Errorf("unknown wait condition type %q", cond.Type)
	}
}

// describeCondition renders a condition for progress logging.
func describeCondition(cond models.WaitCondition) string {
	if cond.Description != "" {
		return cond.Description
	}
	if cond.Target != "" {
		return fmt.Sprintf("%s %s", cond.Type, cond.Target)
	}
	if cond.Expected != "" {
		return fmt.Sprintf("%s %q", cond.Type, cond.Expected)
	}
	return cond.Type
}
