// Package driver automates an Electron-based IDE over the Chrome DevTools
// Protocol. The IDE is launched with a remote debugging port by the session
// manager; the driver attaches to that port and executes scenario steps
// against the workbench DOM.
package driver

import (
	"context"

	"github.com/jkeller/pilot/internal/models"
)

// Driver executes automation steps and UI probes against one IDE session.
// Implementations must be safe for use from a single goroutine at a time;
// the orchestrator serializes access per session.
type Driver interface {
	// ExecuteStep performs one step and returns its result. A non-nil error
	// is classified for retryability and mirrors result.Error.
	ExecuteStep(ctx context.Context, step models.Step) (models.StepResult, error)

	// ElementVisible reports whether the selector matches a visible element.
	ElementVisible(ctx context.Context, selector string) (bool, error)

	// ElementText returns the text content of the first element matching the
	// selector.
	ElementText(ctx context.Context, selector string) (string, error)

	// Notifications returns the text of the currently displayed IDE
	// notification toasts.
	Notifications(ctx context.Context) ([]string, error)

	// AgentState reads the state of the IDE's agent panel, one of
	// "idle", "working", "complete", or "" when no panel is present.
	AgentState(ctx context.Context) (string, error)

	// CaptureScreenshot saves a full-page screenshot and returns its path.
	CaptureScreenshot(ctx context.Context, name string) (string, error)

	// HealthPing performs a minimal protocol round-trip to verify the
	// session still responds.
	HealthPing(ctx context.Context) error

	// ConsoleErrors returns uncaught exceptions collected from the IDE's
	// renderer since attach. Used for crash diagnostics.
	ConsoleErrors() []string

	// Close detaches from the session. It does not terminate the IDE.
	Close() error
}

// Default workbench selectors for a VS Code style IDE. Overridable per
// variant through Options.
const (
	defaultWorkbenchSelector    = ".monaco-workbench"
	defaultNotificationSelector = ".notifications-toasts .notification-list-item-message"
	defaultQuickInputSelector   = ".quick-input-widget input"
	defaultAgentPanelSelector   = "[data-agent-state]"
)

// Options configures a ChromeDriver.
type Options struct {
	// DebugURL is the DevTools endpoint of the running IDE, e.g.
	// "http://127.0.0.1:9222".
	DebugURL string

	// ScreenshotDir is where captured screenshots are written.
	ScreenshotDir string

	// SessionID tags screenshots and log lines with the owning session.
	SessionID string

	// WorkbenchSelector is the readiness marker for the IDE workbench.
	WorkbenchSelector string

	// NotificationSelector matches notification toast messages.
	NotificationSelector string

	// QuickInputSelector matches the command palette input box.
	QuickInputSelector string

	// AgentPanelSelector matches the agent panel state element.
	AgentPanelSelector string
}

// withDefaults fills unset selector options.
func (o Options) withDefaults() Options {
	if o.WorkbenchSelector == "" {
		o.WorkbenchSelector = defaultWorkbenchSelector
	}
	if o.NotificationSelector == "" {
		o.NotificationSelector = defaultNotificationSelector
	}
	if o.QuickInputSelector == "" {
		o.QuickInputSelector = defaultQuickInputSelector
	}
	if o.AgentPanelSelector == "" {
		o.AgentPanelSelector = defaultAgentPanelSelector
	}
	return o
}
