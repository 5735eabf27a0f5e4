// Package parser loads scenario definitions from YAML or Markdown files and
// validates them against the known step actions and wait condition types.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jkeller/pilot/internal/models"
)

// Format represents the format of a scenario file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) scenario file
	FormatMarkdown
	// FormatYAML represents a YAML (.yaml, .yml) scenario file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser is the interface that all scenario parsers implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Scenario
	Parse(r io.Reader) (*models.Scenario, error)
}

// DetectFormat automatically detects the scenario format based on file extension
// Supported extensions:
//   - .md, .markdown -> FormatMarkdown
//   - .yaml, .yml -> FormatYAML
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
// Returns an error if the format is unknown or unsupported
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile auto-detects the format, opens the file, parses it, and validates
// the resulting scenario. The original file path is stored in
// scenario.FilePath. This is the recommended way to load scenarios from disk.
func ParseFile(path string) (*models.Scenario, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .yaml, .yml)", path)
	}

	p, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	scenario, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	scenario.FilePath = absPath

	// Default the scenario id to the file stem when omitted.
	if scenario.ID == "" {
		base := filepath.Base(path)
		scenario.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}
