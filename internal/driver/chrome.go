package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jkeller/pilot/internal/models"
	"github.com/jkeller/pilot/internal/retry"
)

// defaultStepTimeout bounds a step that does not set its own timeout.
const defaultStepTimeout = 10 * time.Second

// ChromeDriver drives an IDE session over a remote DevTools endpoint.
type ChromeDriver struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	consoleErrors []string
}

var _ Driver = (*ChromeDriver)(nil)

// Attach connects to the DevTools endpoint of an already running IDE and
// waits for the workbench readiness marker.
func Attach(ctx context.Context, opts Options) (*ChromeDriver, error) {
	opts = opts.withDefaults()
	if opts.DebugURL == "" {
		return nil, fmt.Errorf("debug URL is required")
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, opts.DebugURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		opts: opts,
		ctx:  browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	// Collect renderer exceptions for crash diagnostics.
	chromedp.ListenTarget(d.ctx, func(ev interface{}) {
		if ex, ok := ev.(*runtime.EventExceptionThrown); ok {
			d.mu.Lock()
			d.consoleErrors = append(d.consoleErrors, ex.ExceptionDetails.Text)
			d.mu.Unlock()
		}
	})

	if err := chromedp.Run(browserCtx,
		chromedp.WaitVisible(opts.WorkbenchSelector, chromedp.ByQuery),
	); err != nil {
		d.cancel()
		return nil, retry.Classify(retry.KindConnection,
			fmt.Errorf("workbench did not become ready: %w", err))
	}

	return d, nil
}

// ExecuteStep performs one automation step against the attached session.
func (d *ChromeDriver) ExecuteStep(ctx context.Context, step models.Step) (models.StepResult, error) {
	start := time.Now()
	result := models.StepResult{
		Action: step.Action,
		Name:   step.Name,
		Passed: true,
	}

	timeout := step.Timeout
	if timeout == 0 {
		timeout = defaultStepTimeout
	}
	stepCtx, cancel := d.stepContext(ctx, timeout)
	defer cancel()

	var err error
	switch step.Action {
	case models.ActionClick:
		err = chromedp.Run(stepCtx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
			chromedp.Click(step.Selector, chromedp.ByQuery),
		)
		err = d.classify(retry.KindElementNotReady, err)

	case models.ActionType:
		err = chromedp.Run(stepCtx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
			chromedp.Clear(step.Selector, chromedp.ByQuery),
			chromedp.SendKeys(step.Selector, step.Value, chromedp.ByQuery),
		)
		err = d.classify(retry.KindElementNotReady, err)

	case models.ActionKeys:
		err = d.sendChord(stepCtx, step.Value)

	case models.ActionCommand:
		err = d.runPaletteCommand(stepCtx, step.Value)

	case models.ActionOpenFile:
		err = d.openFile(stepCtx, step.Value)

	case models.ActionWait:
		// Fixed delay; interruptible by the step context.
		select {
		case <-stepCtx.Done():
			err = d.classify(retry.KindTimeout, stepCtx.Err())
		case <-time.After(timeout):
		}

	case models.ActionScreenshot:
		name := step.Name
		if name == "" {
			name = "step"
		}
		var path string
		path, err = d.CaptureScreenshot(stepCtx, name)
		if err == nil && path != "" {
			result.Logs = append(result.Logs, fmt.Sprintf("screenshot: %s", path))
		}

	case models.ActionEvaluate:
		var value interface{}
		err = chromedp.Run(stepCtx, chromedp.Evaluate(step.Value, &value))
		if err == nil {
			result.Logs = append(result.Logs, fmt.Sprintf("evaluate result: %v", value))
		}

	default:
		// Unknown actions are rejected at parse time; reaching here means a
		// programming error, never retry it.
		err = retry.Classify(retry.KindFatal, fmt.Errorf("unknown action %q", step.Action))
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.Passed = false
		result.Error = err.Error()
	}

	return result, err
}

// stepContext derives a bounded context from the browser context. chromedp
// actions must run on the browser context; the caller's ctx and the timeout
// only bound them.
func (d *ChromeDriver) stepContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	if ctx == nil {
		return runCtx, cancel
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// classify tags err with kind unless it is a deadline, which is always a
// timeout.
func (d *ChromeDriver) classify(kind retry.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Classify(retry.KindTimeout, err)
	}
	return retry.Classify(kind, err)
}

// sendChord dispatches a key chord like "ctrl+shift+p" or a named key like
// "enter".
func (d *ChromeDriver) sendChord(ctx context.Context, chord string) error {
	parts := strings.Split(chord, "+")
	key := strings.TrimSpace(parts[len(parts)-1])

	var mods input.Modifier
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			mods |= input.ModifierCtrl
		case "shift":
			mods |= input.ModifierShift
		case "alt", "option":
			mods |= input.ModifierAlt
		case "cmd", "meta", "super":
			mods |= input.ModifierMeta
		default:
			return retry.Classify(retry.KindFatal, fmt.Errorf("unknown modifier %q in chord %q", part, chord))
		}
	}

	err := chromedp.Run(ctx, chromedp.KeyEvent(namedKey(key), chromedp.KeyModifiers(mods)))
	return d.classify(retry.KindConnection, err)
}

// namedKey maps a human-readable key name to its DOM key value.
func namedKey(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return kb.Enter
	case "escape", "esc":
		return kb.Escape
	case "tab":
		return kb.Tab
	case "backspace":
		return kb.Backspace
	case "delete":
		return kb.Delete
	case "up":
		return kb.ArrowUp
	case "down":
		return kb.ArrowDown
	case "left":
		return kb.ArrowLeft
	case "right":
		return kb.ArrowRight
	case "home":
		return kb.Home
	case "end":
		return kb.End
	case "pageup":
		return kb.PageUp
	case "pagedown":
		return kb.PageDown
	case "f1":
		return kb.F1
	default:
		return key
	}
}

// runPaletteCommand executes an IDE command through the command palette:
// open the palette, type the command, confirm.
func (d *ChromeDriver) runPaletteCommand(ctx context.Context, command string) error {
	if err := d.sendChord(ctx, "f1"); err != nil {
		return err
	}
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(d.opts.QuickInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(d.opts.QuickInputSelector, command, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
	return d.classify(retry.KindElementNotReady, err)
}

// openFile opens a file through the quick-open picker.
func (d *ChromeDriver) openFile(ctx context.Context, path string) error {
	if err := d.sendChord(ctx, "ctrl+p"); err != nil {
		return err
	}
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(d.opts.QuickInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(d.opts.QuickInputSelector, path, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
	return d.classify(retry.KindElementNotReady, err)
}

// ElementVisible reports whether the selector matches a visible element.
// A missing element is not an error.
func (d *ChromeDriver) ElementVisible(ctx context.Context, selector string) (bool, error) {
	runCtx, cancel := d.stepContext(ctx, defaultStepTimeout)
	defer cancel()

	var visible bool
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el !== null && el.offsetParent !== null; })()`,
		selector)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, d.classify(retry.KindConnection, err)
	}
	return visible, nil
}

// ElementText returns the text content of the first matching element, or ""
// when the element is absent.
func (d *ChromeDriver) ElementText(ctx context.Context, selector string) (string, error) {
	runCtx, cancel := d.stepContext(ctx, defaultStepTimeout)
	defer cancel()

	var text string
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.textContent : ''; })()`,
		selector)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &text)); err != nil {
		return "", d.classify(retry.KindConnection, err)
	}
	return text, nil
}

// Notifications returns the visible notification toast messages.
func (d *ChromeDriver) Notifications(ctx context.Context) ([]string, error) {
	runCtx, cancel := d.stepContext(ctx, defaultStepTimeout)
	defer cancel()

	var messages []string
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(el => el.textContent.trim())`,
		d.opts.NotificationSelector)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &messages)); err != nil {
		return nil, d.classify(retry.KindConnection, err)
	}
	return messages, nil
}

// AgentState reads the agent panel state attribute.
func (d *ChromeDriver) AgentState(ctx context.Context) (string, error) {
	runCtx, cancel := d.stepContext(ctx, defaultStepTimeout)
	defer cancel()

	var state string
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (!el) return ''; return el.getAttribute('data-agent-state') || el.textContent.trim(); })()`,
		d.opts.AgentPanelSelector)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &state)); err != nil {
		return "", d.classify(retry.KindConnection, err)
	}
	return state, nil
}

// CaptureScreenshot saves a full-page screenshot named after the session and
// the given identifier. Returns the written path.
func (d *ChromeDriver) CaptureScreenshot(ctx context.Context, name string) (string, error) {
	runCtx, cancel := d.stepContext(ctx, 30*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return "", d.classify(retry.KindConnection, err)
	}
	if len(buf) == 0 {
		return "", fmt.Errorf("screenshot capture returned no data")
	}

	dir := d.opts.ScreenshotDir
	if dir == "" {
		dir = filepath.Join(".pilot", "screenshots")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	filename := fmt.Sprintf("%s-%s-%s.png",
		sanitizeName(d.opts.SessionID), time.Now().Format("20060102-150405"), sanitizeName(name))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}

	return path, nil
}

// sanitizeName makes an identifier safe for use in a file name.
func sanitizeName(name string) string {
	if name == "" {
		return "session"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "?", "_", " ", "_")
	safe := replacer.Replace(name)
	if len(safe) > 50 {
		safe = safe[:50]
	}
	return safe
}

// HealthPing performs a minimal protocol round-trip.
func (d *ChromeDriver) HealthPing(ctx context.Context) error {
	runCtx, cancel := d.stepContext(ctx, defaultStepTimeout)
	defer cancel()

	var state string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return d.classify(retry.KindConnection, err)
	}
	return nil
}

// ConsoleErrors returns a copy of the renderer exceptions collected so far.
func (d *ChromeDriver) ConsoleErrors() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.consoleErrors...)
}

// Close detaches from the DevTools endpoint.
func (d *ChromeDriver) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}
