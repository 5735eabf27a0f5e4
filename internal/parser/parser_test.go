package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkeller/pilot/internal/models"
)

const sampleYAML = `
id: open-project
name: Open a project and run a task
failure_strategy: retry
max_retries: 2
sessions:
  - id: main
    variant: stable
    fresh_profile: true
milestones:
  - id: launch
    name: Launch and open workspace
    critical: true
    steps:
      - action: command
        value: "workbench.action.files.openFolder"
      - action: screenshot
    wait_for:
      - type: element-present
        target: ".monaco-workbench"
        timeout: 30s
        poll_interval: 1s
  - id: edit
    name: Edit a file
    depends_on: [launch]
    parallel: true
    steps:
      - action: openFile
        value: "main.go"
      - action: type
        selector: ".monaco-editor textarea"
        value: "package main"
        timeout: 10s
`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"scenario.yaml", FormatYAML},
		{"scenario.yml", FormatYAML},
		{"scenario.md", FormatMarkdown},
		{"scenario.markdown", FormatMarkdown},
		{"SCENARIO.YAML", FormatYAML},
		{"scenario.json", FormatUnknown},
		{"scenario", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.filename))
		})
	}
}

func TestYAMLParserParsesScenario(t *testing.T) {
	scenario, err := NewYAMLParser().Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "open-project", scenario.ID)
	assert.Equal(t, models.StrategyRetry, scenario.Strategy())
	assert.Equal(t, 2, scenario.MaxRetries)
	require.Len(t, scenario.Milestones, 2)

	launch := scenario.Milestones[0]
	assert.True(t, launch.Critical)
	require.Len(t, launch.Steps, 2)
	assert.Equal(t, models.ActionCommand, launch.Steps[0].Action)
	require.Len(t, launch.WaitFor, 1)
	assert.Equal(t, models.WaitElementPresent, launch.WaitFor[0].Type)
	assert.Equal(t, 30*time.Second, launch.WaitFor[0].Timeout)
	assert.Equal(t, time.Second, launch.WaitFor[0].PollInterval)

	edit := scenario.Milestones[1]
	assert.Equal(t, []string{"launch"}, edit.DependsOn)
	assert.True(t, edit.Parallel)
	assert.Equal(t, 10*time.Second, edit.Steps[1].Timeout)
}

func TestYAMLParserRejectsUnknownAction(t *testing.T) {
	src := `
id: bad
name: Bad scenario
milestones:
  - id: m1
    name: First
    steps:
      - action: teleport
        value: somewhere
`
	scenario, err := NewYAMLParser().Parse(strings.NewReader(src))
	require.NoError(t, err)
	err = scenario.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step action")
}

func TestYAMLParserRejectsUnknownFields(t *testing.T) {
	src := `
id: bad
name: Bad scenario
milstones: []
`
	_, err := NewYAMLParser().Parse(strings.NewReader(src))
	require.Error(t, err)
}

func TestYAMLParserRejectsEmptyDocument(t *testing.T) {
	_, err := NewYAMLParser().Parse(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestMarkdownParserExtractsYAMLFence(t *testing.T) {
	src := "# Debugging smoke test\n\nSome prose describing intent.\n\n" +
		"```yaml\n" + strings.TrimPrefix(sampleYAML, "\n") + "```\n\nTrailing notes.\n"

	scenario, err := NewMarkdownParser().Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "open-project", scenario.ID)
	// Name from the YAML block wins over the document title.
	assert.Equal(t, "Open a project and run a task", scenario.Name)
	require.Len(t, scenario.Milestones, 2)
}

func TestMarkdownParserUsesTitleWhenYAMLHasNoName(t *testing.T) {
	src := "# Titled scenario\n\n```yaml\nid: titled\nmilestones:\n  - id: m1\n    name: Only\n    steps:\n      - action: screenshot\n```\n"

	scenario, err := NewMarkdownParser().Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "Titled scenario", scenario.Name)
}

func TestMarkdownParserRequiresYAMLFence(t *testing.T) {
	_, err := NewMarkdownParser().Parse(strings.NewReader("# No block here\n\njust prose\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ```yaml scenario block")
}

func TestParseFileValidatesAndSetsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	scenario, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "open-project", scenario.ID)
	assert.True(t, filepath.IsAbs(scenario.FilePath))
}

func TestParseFileDefaultsScenarioIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	src := `
name: Unnamed id
milestones:
  - id: m1
    name: Only
    steps:
      - action: screenshot
`
	path := filepath.Join(dir, "smoke-test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	scenario, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke-test", scenario.ID)
}

func TestParseFileRejectsUnknownExtension(t *testing.T) {
	_, err := ParseFile("scenario.toml")
	require.Error(t, err)
}

func TestParseFileRejectsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	src := `
id: cyclic
name: Cyclic
milestones:
  - id: a
    name: A
    depends_on: [b]
    steps:
      - action: screenshot
  - id: b
    name: B
    depends_on: [a]
    steps:
      - action: screenshot
`
	path := filepath.Join(dir, "cyclic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	_, err := ParseFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}
