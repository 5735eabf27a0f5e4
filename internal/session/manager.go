package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/models"
)

// Logger is the logging surface the session manager needs.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogSessionEvent(sessionID, event string)
}

type noopLogger struct{}

func (noopLogger) LogDebug(string)             {}
func (noopLogger) LogInfo(string)              {}
func (noopLogger) LogWarn(string)              {}
func (noopLogger) LogError(string)             {}
func (noopLogger) LogSessionEvent(_, _ string) {}

// WorkspaceResolver turns a session spec into a local workspace directory,
// cloning the repository when one is declared.
type WorkspaceResolver interface {
	Resolve(ctx context.Context, spec models.SessionSpec) (string, error)
}

// CrashHandler is notified when a session is declared crashed. It runs on the
// session's monitor goroutine and must not block for long.
type CrashHandler func(sessionID string, consoleErrors []string)

// Manager launches and tracks the IDE sessions of one scenario run.
type Manager struct {
	cfg        config.SessionConfig
	launcher   Launcher
	workspaces WorkspaceResolver
	log        Logger

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string

	onCrash  CrashHandler
	monitors sync.WaitGroup
	stopMon  context.CancelFunc
}

// NewManager creates a session manager. launcher and workspaces are required;
// log may be nil.
func NewManager(cfg config.SessionConfig, launcher Launcher, workspaces WorkspaceResolver, log Logger) *Manager {
	if log == nil {
		log = noopLogger{}
	}
	return &Manager{
		cfg:        cfg,
		launcher:   launcher,
		workspaces: workspaces,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// OnCrash registers the crash handler. Must be called before StartAll.
func (m *Manager) OnCrash(handler CrashHandler) {
	m.onCrash = handler
}

// StartAll launches every declared session in order. A scenario with no
// declared sessions gets one implicit session with default settings. On any
// launch failure the already started sessions are torn down.
func (m *Manager) StartAll(ctx context.Context, specs []models.SessionSpec) error {
	if len(specs) == 0 {
		specs = []models.SessionSpec{{ID: "default", FreshProfile: true}}
	}

	for _, spec := range specs {
		if err := m.start(ctx, spec); err != nil {
			m.TeardownAll()
			return err
		}
	}

	monCtx, cancel := context.WithCancel(context.Background())
	m.stopMon = cancel
	m.mu.Lock()
	for _, s := range m.sessions {
		m.monitors.Add(1)
		go m.monitor(monCtx, s)
	}
	m.mu.Unlock()

	return nil
}

func (m *Manager) start(ctx context.Context, spec models.SessionSpec) error {
	workspacePath, err := m.workspaces.Resolve(ctx, spec)
	if err != nil {
		return fmt.Errorf("session %s: workspace: %w", spec.ID, err)
	}

	m.log.LogSessionEvent(spec.ID, fmt.Sprintf("launching (workspace %s)", workspacePath))
	launched, err := m.launcher.Launch(ctx, spec, workspacePath)
	if err != nil {
		return err
	}
	m.log.LogSessionEvent(spec.ID, "ready")

	s := &Session{
		ID:            spec.ID,
		Spec:          spec,
		driver:        launched.Driver,
		stop:          launched.Stop,
		workspacePath: workspacePath,
		profileDir:    launched.ProfileDir,
		launchedAt:    time.Now(),
		state:         HealthState{Healthy: true},
	}

	m.mu.Lock()
	m.sessions[spec.ID] = s
	m.order = append(m.order, spec.ID)
	m.mu.Unlock()

	return nil
}

// Get returns the session with the given ID. An empty ID resolves to the
// first declared session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		if len(m.order) == 0 {
			return nil, fmt.Errorf("no sessions are running")
		}
		return m.sessions[m.order[0]], nil
	}

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return s, nil
}

// Records returns lifecycle records for all sessions in launch order.
func (m *Manager) Records() []models.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]models.SessionRecord, 0, len(m.order))
	for _, id := range m.order {
		records = append(records, m.sessions[id].Record())
	}
	return records
}

// monitor probes one session's health at the configured interval until the
// context is cancelled or the session crashes. It is the single writer of the
// session's health state.
func (m *Manager) monitor(ctx context.Context, s *Session) {
	defer m.monitors.Done()

	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	probeTimeout := m.cfg.HealthTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	state := s.Health()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.driver.HealthPing(probeCtx)
		cancel()

		state.LastProbe = time.Now()
		if err == nil {
			if state.ConsecutiveFailures > 0 {
				m.log.LogSessionEvent(s.ID, "health probe recovered")
			}
			state.Healthy = true
			state.ConsecutiveFailures = 0
			s.setState(state)
			continue
		}

		state.ConsecutiveFailures++
		state.Healthy = false
		m.log.LogWarn(fmt.Sprintf("session %s: health probe failed (%d/%d): %v",
			s.ID, state.ConsecutiveFailures, crashThreshold, err))

		if state.ConsecutiveFailures >= crashThreshold {
			state.Crashed = true
			s.setState(state)
			m.log.LogError(fmt.Sprintf("session %s: declared crashed after %d failed probes",
				s.ID, state.ConsecutiveFailures))
			if m.onCrash != nil {
				m.onCrash(s.ID, s.driver.ConsoleErrors())
			}
			return
		}
		s.setState(state)
	}
}

// TeardownAll stops health monitors and terminates every session. Teardown
// failures are logged, never returned: cleanup must not mask run outcomes.
func (m *Manager) TeardownAll() {
	if m.stopMon != nil {
		m.stopMon()
		m.monitors.Wait()
		m.stopMon = nil
	}

	m.mu.Lock()
	order := append([]string(nil), m.order...)
	sessions := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		sessions[id] = s
	}
	m.order = nil
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	// Tear down in reverse launch order.
	for i := len(order) - 1; i >= 0; i-- {
		s := sessions[order[i]]

		if err := s.driver.Close(); err != nil {
			m.log.LogWarn(fmt.Sprintf("session %s: driver close: %v", s.ID, err))
		}
		if s.stop != nil {
			if err := s.stop(); err != nil {
				m.log.LogWarn(fmt.Sprintf("session %s: process stop: %v", s.ID, err))
			}
		}
		if s.profileDir != "" {
			if err := os.RemoveAll(s.profileDir); err != nil {
				m.log.LogWarn(fmt.Sprintf("session %s: profile cleanup: %v", s.ID, err))
			}
		}
		m.log.LogSessionEvent(s.ID, "torn down")
	}
}
