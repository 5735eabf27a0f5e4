package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/driver"
	"github.com/jkeller/pilot/internal/models"
)

// fakeDriver implements driver.Driver with scriptable health probes.
type fakeDriver struct {
	mu          sync.Mutex
	pingErrs    []error
	pings       int
	closed      bool
	consoleErrs []string
}

var _ driver.Driver = (*fakeDriver)(nil)

func (f *fakeDriver) ExecuteStep(ctx context.Context, step models.Step) (models.StepResult, error) {
	return models.StepResult{Action: step.Action, Passed: true}, nil
}

func (f *fakeDriver) ElementVisible(ctx context.Context, selector string) (bool, error) {
	return true, nil
}

func (f *fakeDriver) ElementText(ctx context.Context, selector string) (string, error) {
	return "", nil
}

func (f *fakeDriver) Notifications(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeDriver) AgentState(ctx context.Context) (string, error) {
	return "", nil
}

func (f *fakeDriver) CaptureScreenshot(ctx context.Context, name string) (string, error) {
	return "", nil
}

func (f *fakeDriver) HealthPing(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.pings < len(f.pingErrs) {
		err = f.pingErrs[f.pings]
	} else if len(f.pingErrs) > 0 {
		err = f.pingErrs[len(f.pingErrs)-1]
	}
	f.pings++
	return err
}

func (f *fakeDriver) ConsoleErrors() []string {
	return f.consoleErrs
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeLauncher returns pre-built drivers per session ID.
type fakeLauncher struct {
	mu       sync.Mutex
	drivers  map[string]*fakeDriver
	launched []string
	stopped  []string
	failFor  string
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{drivers: make(map[string]*fakeDriver)}
}

func (l *fakeLauncher) Launch(ctx context.Context, spec models.SessionSpec, workspacePath string) (*Launched, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spec.ID == l.failFor {
		return nil, fmt.Errorf("session %s: boom", spec.ID)
	}

	d, ok := l.drivers[spec.ID]
	if !ok {
		d = &fakeDriver{}
		l.drivers[spec.ID] = d
	}
	l.launched = append(l.launched, spec.ID)
	id := spec.ID
	return &Launched{
		Driver: d,
		Stop: func() error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stopped = append(l.stopped, id)
			return nil
		},
	}, nil
}

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, spec models.SessionSpec) (string, error) {
	return spec.WorkspacePath, nil
}

func fastConfig() config.SessionConfig {
	return config.SessionConfig{
		LaunchTimeout:  time.Second,
		ReadyTimeout:   time.Second,
		HealthInterval: 10 * time.Millisecond,
		HealthTimeout:  5 * time.Millisecond,
	}
}

func TestStartAllLaunchesDeclaredSessions(t *testing.T) {
	launcher := newFakeLauncher()
	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)
	defer m.TeardownAll()

	specs := []models.SessionSpec{
		{ID: "main", WorkspacePath: "/tmp/a"},
		{ID: "aux", WorkspacePath: "/tmp/b"},
	}
	require.NoError(t, m.StartAll(context.Background(), specs))
	assert.Equal(t, []string{"main", "aux"}, launcher.launched)

	s, err := m.Get("aux")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/b", s.WorkspacePath())
	assert.True(t, s.Health().Healthy)
}

func TestStartAllDefaultsToImplicitSession(t *testing.T) {
	launcher := newFakeLauncher()
	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)
	defer m.TeardownAll()

	require.NoError(t, m.StartAll(context.Background(), nil))
	assert.Equal(t, []string{"default"}, launcher.launched)

	s, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, "default", s.ID)
}

func TestStartAllTearsDownOnLaunchFailure(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFor = "aux"
	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)

	specs := []models.SessionSpec{{ID: "main"}, {ID: "aux"}}
	err := m.StartAll(context.Background(), specs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"main"}, launcher.stopped)
}

func TestGetEmptyIDReturnsFirstSession(t *testing.T) {
	launcher := newFakeLauncher()
	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)
	defer m.TeardownAll()

	specs := []models.SessionSpec{{ID: "first"}, {ID: "second"}}
	require.NoError(t, m.StartAll(context.Background(), specs))

	s, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, "first", s.ID)

	_, err = m.Get("ghost")
	require.Error(t, err)
}

func TestMonitorDeclaresCrashAfterConsecutiveFailures(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.drivers["main"] = &fakeDriver{
		pingErrs:    []error{nil, errors.New("gone"), errors.New("gone"), errors.New("gone")},
		consoleErrs: []string{"Uncaught TypeError"},
	}

	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)
	defer m.TeardownAll()

	crashed := make(chan string, 1)
	var gotConsole []string
	m.OnCrash(func(sessionID string, consoleErrors []string) {
		gotConsole = consoleErrors
		crashed <- sessionID
	})

	require.NoError(t, m.StartAll(context.Background(), []models.SessionSpec{{ID: "main"}}))

	select {
	case id := <-crashed:
		assert.Equal(t, "main", id)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not declared crashed")
	}

	s, err := m.Get("main")
	require.NoError(t, err)
	assert.True(t, s.Crashed())
	assert.Equal(t, []string{"Uncaught TypeError"}, gotConsole)
	assert.Equal(t, []models.SessionRecord{s.Record()}, m.Records())
	assert.True(t, s.Record().Crashed)
}

func TestMonitorRecoversBeforeThreshold(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.drivers["main"] = &fakeDriver{
		pingErrs: []error{errors.New("blip"), errors.New("blip"), nil},
	}

	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)
	defer m.TeardownAll()

	crashed := make(chan string, 1)
	m.OnCrash(func(sessionID string, _ []string) { crashed <- sessionID })

	require.NoError(t, m.StartAll(context.Background(), []models.SessionSpec{{ID: "main"}}))

	s, err := m.Get("main")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		h := s.Health()
		return h.Healthy && h.ConsecutiveFailures == 0 && !h.LastProbe.IsZero()
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case <-crashed:
		t.Fatal("two failed probes must not declare a crash")
	default:
	}
}

func TestTeardownAllStopsEverything(t *testing.T) {
	launcher := newFakeLauncher()
	m := NewManager(fastConfig(), launcher, staticResolver{}, nil)

	specs := []models.SessionSpec{{ID: "a"}, {ID: "b"}}
	require.NoError(t, m.StartAll(context.Background(), specs))

	m.TeardownAll()

	// Reverse launch order.
	assert.Equal(t, []string{"b", "a"}, launcher.stopped)
	assert.True(t, launcher.drivers["a"].closed)
	assert.True(t, launcher.drivers["b"].closed)

	_, err := m.Get("a")
	assert.Error(t, err)
}

func TestResolveExecutableRejectsUnknownVariant(t *testing.T) {
	_, err := resolveExecutable(models.SessionSpec{ID: "s", Variant: "nightly"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}

func TestResolveExecutableUsesExplicitPath(t *testing.T) {
	_, err := resolveExecutable(models.SessionSpec{ID: "s", Executable: "/nonexistent/ide"})
	require.Error(t, err)
}
