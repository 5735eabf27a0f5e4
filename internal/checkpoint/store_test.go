package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkeller/pilot/internal/models"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	state := models.NewOrchestratorState("run-1", "smoke")
	state.MarkCompleted("launch")
	state.MarkFailed("edit")
	state.MilestoneResults["launch"] = models.MilestoneResult{
		MilestoneID: "launch",
		Status:      models.StatusPassed,
		StepResults: []models.StepResult{{Action: models.ActionCommand, Passed: true}},
	}
	state.Sessions = []models.SessionRecord{{ID: "main"}}

	require.NoError(t, store.Save(state))
	assert.False(t, state.LastCheckpointTime.IsZero())

	loaded, err := store.Load("smoke")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, []string{"launch"}, loaded.CompletedMilestones)
	assert.Equal(t, []string{"edit"}, loaded.FailedMilestones)
	require.Contains(t, loaded.MilestoneResults, "launch")
	assert.Equal(t, models.StatusPassed, loaded.MilestoneResults["launch"].Status)
	require.Len(t, loaded.Sessions, 1)
}

func TestSaveOverwritesWholeState(t *testing.T) {
	store := NewStore(t.TempDir())

	first := models.NewOrchestratorState("run-1", "smoke")
	first.MarkCompleted("a")
	first.MarkCompleted("b")
	require.NoError(t, store.Save(first))

	second := models.NewOrchestratorState("run-2", "smoke")
	second.MarkCompleted("a")
	require.NoError(t, store.Save(second))

	loaded, err := store.Load("smoke")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-2", loaded.RunID)
	assert.Equal(t, []string{"a"}, loaded.CompletedMilestones)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())
	loaded, err := store.Load("never-saved")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadCorruptReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(store.PathFor("smoke"), []byte("{truncated"), 0o644))

	loaded, err := store.Load("smoke")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadMismatchedScenarioReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	state := models.NewOrchestratorState("run-1", "other")
	require.NoError(t, store.Save(state))
	require.NoError(t, os.Rename(store.PathFor("other"), store.PathFor("smoke")))

	loaded, err := store.Load("smoke")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())

	state := models.NewOrchestratorState("run-1", "smoke")
	require.NoError(t, store.Save(state))
	require.NoError(t, store.Delete("smoke"))
	require.NoError(t, store.Delete("smoke"))

	loaded, err := store.Load("smoke")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPathForSanitizesScenarioID(t *testing.T) {
	store := NewStore("/tmp/checkpoints")
	path := store.PathFor("team/branch: smoke")
	assert.Equal(t, filepath.Base(path), "team_branch__smoke.json")
}

func TestSaveRejectsInvalidState(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.Error(t, store.Save(nil))
	assert.Error(t, store.Save(&models.OrchestratorState{}))
}
