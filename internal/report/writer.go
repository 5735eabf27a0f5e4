// Package report writes run reports to disk and defines the boundary for
// optional LLM evaluation of a finished run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jkeller/pilot/internal/models"
)

// Writer persists run reports as JSON files.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write stores the report as <run-id>.json and returns its path.
func (w *Writer) Write(report models.RunReport) (string, error) {
	if report.RunID == "" {
		return "", fmt.Errorf("report has no run ID")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(w.dir, report.RunID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Load reads a previously written report.
func (w *Writer) Load(runID string) (*models.RunReport, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, runID+".json"))
	if err != nil {
		return nil, err
	}
	var report models.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", runID, err)
	}
	return &report, nil
}
