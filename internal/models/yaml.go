package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration fields in scenario files are written as Go duration strings
// ("30s", "2m"). yaml.v3 has no native time.Duration support, so Step and
// WaitCondition decode through alias structs holding the raw strings.

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", field, raw, err)
	}
	return d, nil
}

// UnmarshalYAML implements yaml.Unmarshaler for Step.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Action   string `yaml:"action"`
		Selector string `yaml:"selector"`
		Value    string `yaml:"value"`
		Timeout  string `yaml:"timeout"`
		Optional bool   `yaml:"optional"`
		Name     string `yaml:"name"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	timeout, err := parseDuration("step timeout", raw.Timeout)
	if err != nil {
		return err
	}

	*s = Step{
		Action:   raw.Action,
		Selector: raw.Selector,
		Value:    raw.Value,
		Timeout:  timeout,
		Optional: raw.Optional,
		Name:     raw.Name,
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for WaitCondition.
func (w *WaitCondition) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Type         string `yaml:"type"`
		Target       string `yaml:"target"`
		Expected     string `yaml:"expected"`
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
		Description  string `yaml:"description"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	timeout, err := parseDuration("wait timeout", raw.Timeout)
	if err != nil {
		return err
	}
	poll, err := parseDuration("wait poll_interval", raw.PollInterval)
	if err != nil {
		return err
	}

	*w = WaitCondition{
		Type:         raw.Type,
		Target:       raw.Target,
		Expected:     raw.Expected,
		Timeout:      timeout,
		PollInterval: poll,
		Description:  raw.Description,
	}
	return nil
}
