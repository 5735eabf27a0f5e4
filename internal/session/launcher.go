// Package session manages the lifecycle of IDE sessions: launch, readiness,
// background health checking, crash detection, and teardown.
package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/driver"
	"github.com/jkeller/pilot/internal/models"
)

// Launched is a running IDE session as produced by a Launcher.
type Launched struct {
	Driver     driver.Driver
	DebugURL   string
	ProfileDir string

	// Stop terminates the IDE process. Nil for externally managed sessions.
	Stop func() error
}

// Launcher starts an IDE process for a session spec and attaches a driver.
type Launcher interface {
	Launch(ctx context.Context, spec models.SessionSpec, workspacePath string) (*Launched, error)
}

// IDELauncher launches an Electron IDE with a remote debugging port and
// attaches over the DevTools protocol.
type IDELauncher struct {
	cfg           config.SessionConfig
	screenshotDir string
	log           Logger
}

var _ Launcher = (*IDELauncher)(nil)

// NewIDELauncher creates an IDELauncher.
func NewIDELauncher(cfg config.SessionConfig, screenshotDir string, log Logger) *IDELauncher {
	if log == nil {
		log = noopLogger{}
	}
	return &IDELauncher{cfg: cfg, screenshotDir: screenshotDir, log: log}
}

// variantExecutables maps IDE variants to their default executable names.
var variantExecutables = map[string]string{
	"":         "code",
	"stable":   "code",
	"insiders": "code-insiders",
}

// resolveExecutable picks the IDE binary for a spec: the explicit path when
// set, otherwise the variant default looked up on PATH.
func resolveExecutable(spec models.SessionSpec) (string, error) {
	if spec.Executable != "" {
		if _, err := os.Stat(spec.Executable); err != nil {
			return "", fmt.Errorf("session %s: executable %s: %w", spec.ID, spec.Executable, err)
		}
		return spec.Executable, nil
	}

	name, ok := variantExecutables[spec.Variant]
	if !ok {
		return "", fmt.Errorf("session %s: unknown variant %q", spec.ID, spec.Variant)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("session %s: variant %q executable not found: %w", spec.ID, spec.Variant, err)
	}
	return path, nil
}

// freePort asks the kernel for an unused TCP port on the loopback interface.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate debug port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Launch starts the IDE process, waits for its DevTools endpoint and the
// workbench readiness marker, then applies the settle delay.
func (l *IDELauncher) Launch(ctx context.Context, spec models.SessionSpec, workspacePath string) (*Launched, error) {
	executable, err := resolveExecutable(spec)
	if err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, err
	}
	debugURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-sandbox",
		"--disable-workspace-trust",
		"--skip-welcome",
		"--skip-release-notes",
	}

	var profileDir string
	if spec.FreshProfile {
		profileDir, err = os.MkdirTemp("", fmt.Sprintf("pilot-%s-*", spec.ID))
		if err != nil {
			return nil, fmt.Errorf("session %s: failed to create profile dir: %w", spec.ID, err)
		}
		args = append(args,
			"--user-data-dir="+profileDir,
			"--extensions-dir="+profileDir+"/extensions",
		)
	}

	if workspacePath != "" {
		args = append(args, workspacePath)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("session %s: failed to start IDE: %w", spec.ID, err)
	}
	l.log.LogDebug(fmt.Sprintf("session %s: launched %s (pid %d, debug port %d)",
		spec.ID, executable, cmd.Process.Pid, port))

	stop := func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := cmd.Process.Kill(); err != nil {
			return err
		}
		cmd.Wait()
		return nil
	}

	// The DevTools endpoint comes up before the workbench renders.
	if err := waitForDebugEndpoint(ctx, debugURL, l.cfg.LaunchTimeout); err != nil {
		stop()
		return nil, fmt.Errorf("session %s: %w", spec.ID, err)
	}

	attachCtx, cancel := context.WithTimeout(ctx, l.cfg.ReadyTimeout)
	defer cancel()
	drv, err := driver.Attach(attachCtx, driver.Options{
		DebugURL:      debugURL,
		ScreenshotDir: l.screenshotDir,
		SessionID:     spec.ID,
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("session %s: failed to attach: %w", spec.ID, err)
	}

	// Let extensions and layout settle before the first step.
	if l.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			drv.Close()
			stop()
			return nil, ctx.Err()
		case <-time.After(l.cfg.SettleDelay):
		}
	}

	return &Launched{
		Driver:     drv,
		DebugURL:   debugURL,
		ProfileDir: profileDir,
		Stop:       stop,
	}, nil
}

// waitForDebugEndpoint polls the DevTools version endpoint until it responds
// or the timeout elapses.
func waitForDebugEndpoint(ctx context.Context, debugURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, debugURL+"/json/version", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("debug endpoint %s not ready after %s", debugURL, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}
