package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jkeller/pilot/internal/models"
)

// Evaluation is an LLM verdict on a finished run.
type Evaluation struct {
	Verdict string `json:"verdict"` // pass, fail, inconclusive
	Summary string `json:"summary"`
}

// Evaluator judges a finished run against the scenario's intent. Runs request
// evaluation through the scenario's evaluate flag.
type Evaluator interface {
	Evaluate(ctx context.Context, scenario *models.Scenario, report models.RunReport) (Evaluation, error)
}

const evalSystemPrompt = "You are a UI test run evaluator. Your ONLY output must be valid JSON " +
	`of the form {"verdict":"pass|fail|inconclusive","summary":"..."}. No markdown, no prose.`

// AgentEvaluator evaluates a run by invoking an agent CLI with the report
// JSON as the prompt payload.
type AgentEvaluator struct {
	// AgentPath is the agent CLI binary. Defaults to "claude".
	AgentPath string

	// Timeout bounds one evaluation invocation.
	Timeout time.Duration
}

var _ Evaluator = (*AgentEvaluator)(nil)

// NewAgentEvaluator creates an AgentEvaluator with default settings.
func NewAgentEvaluator() *AgentEvaluator {
	return &AgentEvaluator{
		AgentPath: "claude",
		Timeout:   2 * time.Minute,
	}
}

// Evaluate sends the scenario description and report to the agent CLI and
// parses the JSON verdict from its output.
func (e *AgentEvaluator) Evaluate(ctx context.Context, scenario *models.Scenario, report models.RunReport) (Evaluation, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	prompt, err := buildPrompt(scenario, report)
	if err != nil {
		return Evaluation{}, err
	}

	agentPath := e.AgentPath
	if agentPath == "" {
		agentPath = "claude"
	}

	cmd := exec.CommandContext(ctx, agentPath, "-p", prompt,
		"--append-system-prompt", evalSystemPrompt,
		"--output-format", "text",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Evaluation{}, fmt.Errorf("evaluation agent failed: %w: %s",
			err, strings.TrimSpace(stderr.String()))
	}

	return parseEvaluation(stdout.Bytes())
}

// buildPrompt renders the evaluation prompt: scenario intent first, then the
// full report JSON.
func buildPrompt(scenario *models.Scenario, report models.RunReport) (string, error) {
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report for evaluation: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Evaluate whether this UI scenario run achieved its intent.\n\n")
	sb.WriteString(fmt.Sprintf("Scenario: %s\n", scenario.Name))
	if scenario.Description != "" {
		sb.WriteString(fmt.Sprintf("Intent: %s\n", scenario.Description))
	}
	sb.WriteString("\nRun report:\n")
	sb.Write(reportJSON)
	return sb.String(), nil
}

// parseEvaluation decodes the agent's JSON verdict, tolerating surrounding
// whitespace or stray text before the JSON object.
func parseEvaluation(output []byte) (Evaluation, error) {
	trimmed := bytes.TrimSpace(output)
	if idx := bytes.IndexByte(trimmed, '{'); idx > 0 {
		trimmed = trimmed[idx:]
	}

	var eval Evaluation
	if err := json.Unmarshal(trimmed, &eval); err != nil {
		return Evaluation{}, fmt.Errorf("unparseable evaluation output: %w", err)
	}

	switch eval.Verdict {
	case "pass", "fail", "inconclusive":
	default:
		return Evaluation{}, fmt.Errorf("unknown evaluation verdict %q", eval.Verdict)
	}
	return eval, nil
}
