package parser

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jkeller/pilot/internal/models"
)

// YAMLParser parses scenario definitions written as plain YAML documents.
type YAMLParser struct{}

// NewYAMLParser creates a YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse decodes a scenario from YAML. Unknown fields are rejected so typos
// surface at parse time rather than as silently ignored configuration.
func (p *YAMLParser) Parse(r io.Reader) (*models.Scenario, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var scenario models.Scenario
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("scenario file is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &scenario, nil
}
