// Package checkpoint persists orchestrator run state so interrupted scenario
// runs can be resumed. One checkpoint file exists per scenario; each save
// overwrites the whole state.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jkeller/pilot/internal/filelock"
	"github.com/jkeller/pilot/internal/models"
)

// Store reads and writes run checkpoints under a directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// the first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// PathFor returns the checkpoint file path for a scenario.
func (s *Store) PathFor(scenarioID string) string {
	return filepath.Join(s.dir, sanitizeID(scenarioID)+".json")
}

// sanitizeID makes a scenario ID safe to use as a file name.
func sanitizeID(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(id)
}

// Save persists the state as the checkpoint for its scenario, stamping
// LastCheckpointTime. The write is atomic and guarded by a file lock so a
// concurrent reader never observes a partial checkpoint.
func (s *Store) Save(state *models.OrchestratorState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil state")
	}
	if state.ScenarioID == "" {
		return fmt.Errorf("cannot save state without scenario ID")
	}

	state.LastCheckpointTime = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := filelock.LockAndWrite(s.PathFor(state.ScenarioID), data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	return nil
}

// Load returns the checkpoint for the scenario, or nil when no usable
// checkpoint exists. A missing or corrupt file means the run starts fresh;
// corruption is never an error.
func (s *Store) Load(scenarioID string) (*models.OrchestratorState, error) {
	data, err := os.ReadFile(s.PathFor(scenarioID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var state models.OrchestratorState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt checkpoint, start fresh.
		return nil, nil
	}
	if state.ScenarioID != scenarioID {
		return nil, nil
	}
	if state.MilestoneResults == nil {
		state.MilestoneResults = make(map[string]models.MilestoneResult)
	}

	return &state, nil
}

// Delete removes the checkpoint for the scenario. Missing files are not an
// error, so Delete is safe to call after every successful run.
func (s *Store) Delete(scenarioID string) error {
	err := os.Remove(s.PathFor(scenarioID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
