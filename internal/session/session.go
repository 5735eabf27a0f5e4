package session

import (
	"sync"
	"time"

	"github.com/jkeller/pilot/internal/driver"
	"github.com/jkeller/pilot/internal/models"
)

// crashThreshold is the number of consecutive failed health probes after
// which a session is declared crashed.
const crashThreshold = 3

// HealthState is a point-in-time view of a session's health. It is written
// only by the session's monitor goroutine; other goroutines read snapshots.
type HealthState struct {
	Healthy             bool
	ConsecutiveFailures int
	LastProbe           time.Time
	Crashed             bool
}

// Session is one running IDE instance under management.
type Session struct {
	ID   string
	Spec models.SessionSpec

	driver        driver.Driver
	stop          func() error
	workspacePath string
	profileDir    string
	launchedAt    time.Time

	mu    sync.Mutex
	state HealthState
}

// Driver returns the automation driver attached to this session.
func (s *Session) Driver() driver.Driver {
	return s.driver
}

// WorkspacePath returns the workspace directory the session opened.
func (s *Session) WorkspacePath() string {
	return s.workspacePath
}

// Health returns a snapshot of the session's health state.
func (s *Session) Health() HealthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Crashed reports whether the session has been declared crashed.
func (s *Session) Crashed() bool {
	return s.Health().Crashed
}

// setState replaces the health state. Called only from the monitor goroutine.
func (s *Session) setState(state HealthState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Record returns the session's lifecycle record for run reports.
func (s *Session) Record() models.SessionRecord {
	return models.SessionRecord{
		ID:            s.ID,
		WorkspacePath: s.workspacePath,
		LaunchedAt:    s.launchedAt,
		Crashed:       s.Crashed(),
	}
}
