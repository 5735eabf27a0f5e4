package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkeller/pilot/internal/retry"
)

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{DebugURL: "http://127.0.0.1:9222"}.withDefaults()

	assert.Equal(t, defaultWorkbenchSelector, opts.WorkbenchSelector)
	assert.Equal(t, defaultNotificationSelector, opts.NotificationSelector)
	assert.Equal(t, defaultQuickInputSelector, opts.QuickInputSelector)
	assert.Equal(t, defaultAgentPanelSelector, opts.AgentPanelSelector)

	custom := Options{WorkbenchSelector: ".workbench"}.withDefaults()
	assert.Equal(t, ".workbench", custom.WorkbenchSelector)
}

func TestAttachRequiresDebugURL(t *testing.T) {
	_, err := Attach(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug URL")
}

func TestNamedKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"enter", kb.Enter},
		{"Return", kb.Enter},
		{"escape", kb.Escape},
		{"esc", kb.Escape},
		{"tab", kb.Tab},
		{"down", kb.ArrowDown},
		{"f1", kb.F1},
		{"p", "p"},
		{"X", "X"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, namedKey(tt.in), "key %q", tt.in)
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "session", sanitizeName(""))
	assert.Equal(t, "main", sanitizeName("main"))
	assert.Equal(t, "a_b_c_d", sanitizeName("a/b:c d"))

	long := sanitizeName(fmt.Sprintf("%0100d", 1))
	assert.Len(t, long, 50)
}

func TestClassifyTagsDeadlineAsTimeout(t *testing.T) {
	d := &ChromeDriver{}

	err := d.classify(retry.KindElementNotReady, context.DeadlineExceeded)
	assert.Equal(t, retry.KindTimeout, retry.KindOf(err))

	err = d.classify(retry.KindElementNotReady, errors.New("element is not visible"))
	assert.Equal(t, retry.KindElementNotReady, retry.KindOf(err))

	assert.NoError(t, d.classify(retry.KindElementNotReady, nil))
}

func TestSendChordRejectsUnknownModifier(t *testing.T) {
	d := &ChromeDriver{ctx: context.Background()}

	err := d.sendChord(context.Background(), "hyper+p")
	require.Error(t, err)
	assert.Equal(t, retry.KindFatal, retry.KindOf(err))
	assert.False(t, retry.IsRetryable(err))
}
