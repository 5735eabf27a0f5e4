package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkeller/pilot/internal/models"
	"github.com/jkeller/pilot/internal/parser"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Validate a scenario without executing it",
		Long: `Validate a scenario file: parse it, check every step against the known
action set, verify session and dependency references, detect dependency
cycles, and preview the execution order.

Examples:
  pilot validate scenario.yaml
  pilot validate --verbose scenario.md   # Also list each milestone's steps`,
		Args: cobra.ExactArgs(1),
		RunE: validateCommand,
	}

	cmd.Flags().Bool("verbose", false, "List steps and wait conditions per milestone")

	return cmd
}

// validateCommand implements the validate command logic
func validateCommand(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	scenario, err := parser.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scenario %q is valid.\n\n", scenario.Name)
	fmt.Fprintf(out, "  Milestones: %d\n", len(scenario.Milestones))
	fmt.Fprintf(out, "  Sessions: %d\n", sessionCount(scenario))
	fmt.Fprintf(out, "  Failure strategy: %s\n", scenario.Strategy())
	if scenario.Strategy() == models.StrategyRetry {
		fmt.Fprintf(out, "  Max retries: %d\n", scenario.MaxRetries)
	}

	waves := executionWaves(scenario.Milestones)
	fmt.Fprintf(out, "\nExecution order:\n")
	for i, wave := range waves {
		fmt.Fprintf(out, "  Wave %d: %s\n", i+1, strings.Join(wave, ", "))
	}

	if verbose {
		fmt.Fprintf(out, "\nMilestones:\n")
		for _, m := range scenario.Milestones {
			fmt.Fprintf(out, "  %s (%s)%s\n", m.ID, m.Name, milestoneMarkers(m))
			for _, step := range m.Steps {
				fmt.Fprintf(out, "    step: %s%s\n", step.Action, stepDetail(step))
			}
			for _, cond := range m.WaitFor {
				fmt.Fprintf(out, "    wait: %s\n", cond.Type)
			}
		}
	}

	return nil
}

func sessionCount(scenario *models.Scenario) int {
	if len(scenario.Sessions) == 0 {
		return 1
	}
	return len(scenario.Sessions)
}

// executionWaves layers the milestone DAG: a wave holds the milestone IDs
// whose dependencies are all satisfied by earlier waves. This is a preview
// only; actual scheduling races individual completions and applies the
// sequential policy.
func executionWaves(milestones []models.Milestone) [][]string {
	done := make(map[string]bool, len(milestones))
	remaining := make([]models.Milestone, len(milestones))
	copy(remaining, milestones)

	var waves [][]string
	for len(remaining) > 0 {
		var wave []string
		var next []models.Milestone
		for _, m := range remaining {
			ready := true
			for _, dep := range m.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, m.ID)
			} else {
				next = append(next, m)
			}
		}
		if len(wave) == 0 {
			// Unsatisfiable dependencies; validation catches cycles, so this
			// only renders a best-effort preview.
			ids := make([]string, len(next))
			for i, m := range next {
				ids[i] = m.ID + " (blocked)"
			}
			waves = append(waves, ids)
			break
		}
		for _, id := range wave {
			done[id] = true
		}
		waves = append(waves, wave)
		remaining = next
	}
	return waves
}

func milestoneMarkers(m models.Milestone) string {
	var markers []string
	if m.Critical {
		markers = append(markers, "critical")
	}
	if m.Parallel {
		markers = append(markers, "parallel")
	}
	if m.Session != "" {
		markers = append(markers, "session="+m.Session)
	}
	if len(markers) == 0 {
		return ""
	}
	return " [" + strings.Join(markers, ", ") + "]"
}

func stepDetail(step models.Step) string {
	switch {
	case step.Selector != "":
		return " " + step.Selector
	case step.Value != "":
		return " " + step.Value
	default:
		return ""
	}
}
