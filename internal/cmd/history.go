package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [scenario-id]",
		Short: "Show recorded run history",
		Long: `Show recent runs from the history database. With a scenario ID,
also shows per-milestone pass rates for that scenario.

Examples:
  pilot history                 # Recent runs across all scenarios
  pilot history smoke           # Runs and milestone stats for one scenario
  pilot history --limit 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: historyCommand,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	cmd.Flags().String("db", "", "Path to the history database (default: from config)")

	return cmd
}

// historyCommand implements the history command logic
func historyCommand(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := config.LoadConfigFromDir(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dbPath = cfg.History.DBPath
	}

	limit, _ := cmd.Flags().GetInt("limit")
	scenarioID := ""
	if len(args) == 1 {
		scenarioID = args[0]
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(cmd.Context(), scenarioID, limit)
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintf(out, "No recorded runs.\n")
		return nil
	}

	fmt.Fprintf(out, "%-38s %-20s %-8s %-10s %s\n", "RUN", "SCENARIO", "STATUS", "DURATION", "STARTED")
	for _, r := range runs {
		status := r.Status
		if r.Resumed {
			status += "*"
		}
		fmt.Fprintf(out, "%-38s %-20s %-8s %-10s %s\n",
			r.RunID, r.ScenarioID, status,
			r.Duration.Round(time.Second),
			r.StartedAt.Format("2006-01-02 15:04:05"))
	}

	if scenarioID == "" {
		return nil
	}

	stats, err := store.MilestoneStats(cmd.Context(), scenarioID)
	if err != nil {
		return fmt.Errorf("failed to query milestone stats: %w", err)
	}
	if len(stats) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\nMilestone pass rates for %s:\n", scenarioID)
	fmt.Fprintf(out, "  %-24s %-8s %-10s %-8s %s\n", "MILESTONE", "RUNS", "PASS RATE", "RETRIES", "AVG DURATION")
	for _, s := range stats {
		fmt.Fprintf(out, "  %-24s %-8d %-10s %-8d %s\n",
			s.MilestoneID, s.Executions,
			fmt.Sprintf("%.0f%%", s.PassRate()*100),
			s.TotalRetries,
			s.AvgDuration.Round(time.Second))
	}

	return nil
}
