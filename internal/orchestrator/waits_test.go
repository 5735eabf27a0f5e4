package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkeller/pilot/internal/models"
)

func TestWaitFixedTimeoutIsAPureDelay(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{}

	start := time.Now()
	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:    models.WaitFixedTimeout,
		Timeout: 30 * time.Millisecond,
	})

	assert.True(t, result.Passed)
	assert.Empty(t, result.Error)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitManualConfirmationAutoApproves(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{}

	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:        models.WaitManualConfirmation,
		Description: "check the diff looks right",
	})

	assert.True(t, result.Passed)
	assert.Equal(t, "auto-approved", result.Evidence)
}

func TestWaitElementPresentPollsUntilVisible(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{visible: []bool{false, false, true}}

	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:         models.WaitElementPresent,
		Target:       "#done-marker",
		Timeout:      time.Second,
		PollInterval: 2 * time.Millisecond,
	})

	assert.True(t, result.Passed)
	assert.Contains(t, result.Evidence, "#done-marker")
}

func TestWaitTimeoutErrorFormat(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{}

	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:         models.WaitElementPresent,
		Target:       "#never",
		Timeout:      40 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})

	assert.False(t, result.Passed)
	assert.Equal(t, "Timeout after 40ms", result.Error)
	assert.GreaterOrEqual(t, result.WaitTime, 40*time.Millisecond)
}

func TestWaitTextPresentMatchesSubstring(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{text: "Build finished: 0 errors, 2 warnings"}

	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:         models.WaitTextPresent,
		Expected:     "0 errors",
		Timeout:      time.Second,
		PollInterval: 2 * time.Millisecond,
	})

	assert.True(t, result.Passed)
}

func TestWaitNotificationPresentMatchesAnyWhenExpectedEmpty(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{notifications: []string{"Extension installed"}}

	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:         models.WaitNotificationPresent,
		Timeout:      time.Second,
		PollInterval: 2 * time.Millisecond,
	})

	require.True(t, result.Passed)
	assert.Contains(t, result.Evidence, "Extension installed")
}

func TestWaitNotificationPresentFiltersOnExpected(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{notifications: []string{"Indexing complete"}}

	result := e.Evaluate(context.Background(), d, models.WaitCondition{
		Type:         models.WaitNotificationPresent,
		Expected:     "Tests passed",
		Timeout:      30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})

	assert.False(t, result.Passed)
	assert.Equal(t, "Timeout after 30ms", result.Error)
}

func TestWaitAgentCompleteRequiresCompleteState(t *testing.T) {
	e := NewWaitEvaluator(nil)

	working := e.Evaluate(context.Background(), &fakeDriver{agentState: "working"}, models.WaitCondition{
		Type:         models.WaitAgentComplete,
		Timeout:      30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	assert.False(t, working.Passed)

	complete := e.Evaluate(context.Background(), &fakeDriver{agentState: "complete"}, models.WaitCondition{
		Type:         models.WaitAgentComplete,
		Timeout:      time.Second,
		PollInterval: 2 * time.Millisecond,
	})
	assert.True(t, complete.Passed)
}

func TestWaitCancelledContextStopsPolling(t *testing.T) {
	e := NewWaitEvaluator(nil)
	d := &fakeDriver{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := e.Evaluate(ctx, d, models.WaitCondition{
		Type:         models.WaitElementPresent,
		Target:       "#never",
		Timeout:      time.Minute,
		PollInterval: 5 * time.Millisecond,
	})

	assert.False(t, result.Passed)
	assert.Contains(t, result.Error, "context canceled")
}

func TestDescribeCondition(t *testing.T) {
	assert.Equal(t, "agent is done",
		describeCondition(models.WaitCondition{Type: models.WaitAgentComplete, Description: "agent is done"}))
	assert.Equal(t, "element-present #save",
		describeCondition(models.WaitCondition{Type: models.WaitElementPresent, Target: "#save"}))
	assert.Equal(t, `text-present "ready"`,
		describeCondition(models.WaitCondition{Type: models.WaitTextPresent, Expected: "ready"}))
	assert.Equal(t, "fixed-timeout",
		describeCondition(models.WaitCondition{Type: models.WaitFixedTimeout}))
}
