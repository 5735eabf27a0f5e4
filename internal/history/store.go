// Package history persists run outcomes in SQLite so past scenario runs and
// per-milestone pass rates can be inspected from the CLI.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jkeller/pilot/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// RunSummary is one recorded run.
type RunSummary struct {
	RunID        string
	ScenarioID   string
	ScenarioName string
	Status       string
	Resumed      bool
	Error        string
	StartedAt    time.Time
	Duration     time.Duration
}

// MilestoneStat aggregates a milestone's outcomes across recorded runs of a
// scenario.
type MilestoneStat struct {
	MilestoneID  string
	Name         string
	Executions   int
	Passes       int
	TotalRetries int
	AvgDuration  time.Duration
}

// PassRate returns the fraction of executions that passed.
func (s MilestoneStat) PassRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Passes) / float64(s.Executions)
}

// Store manages the SQLite run history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath and
// applies the schema.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a completed run and its milestone results in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, report models.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, scenario_id, scenario_name, status, resumed, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.ScenarioID, report.Scenario, report.Status,
		report.Resumed, report.Error, report.StartTime, report.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, m := range report.Milestones {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO milestone_executions (run_id, scenario_id, milestone_id, name, status, critical, recovered, retry_count, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, report.ScenarioID, m.MilestoneID, m.Name, m.Status,
			m.Critical, m.Recovered, m.RetryCount, m.Error, m.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert milestone %s: %w", m.MilestoneID, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the most recent runs, newest first. An empty scenarioID
// returns runs across all scenarios.
func (s *Store) RecentRuns(ctx context.Context, scenarioID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, scenario_id, scenario_name, status, resumed, error, started_at, duration_ms
		FROM runs`
	args := []interface{}{}
	if scenarioID != "" {
		query += " WHERE scenario_id = ?"
		args = append(args, scenarioID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.ScenarioID, &r.ScenarioName, &r.Status,
			&r.Resumed, &r.Error, &r.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MilestoneStats aggregates milestone outcomes for a scenario across all
// recorded runs.
func (s *Store) MilestoneStats(ctx context.Context, scenarioID string) ([]MilestoneStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT milestone_id, name,
		       COUNT(*),
		       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		       SUM(retry_count),
		       AVG(duration_ms)
		FROM milestone_executions
		WHERE scenario_id = ?
		GROUP BY milestone_id, name
		ORDER BY milestone_id`,
		models.StatusPassed, scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("query milestone stats: %w", err)
	}
	defer rows.Close()

	var stats []MilestoneStat
	for rows.Next() {
		var st MilestoneStat
		var avgMs float64
		if err := rows.Scan(&st.MilestoneID, &st.Name, &st.Executions,
			&st.Passes, &st.TotalRetries, &avgMs); err != nil {
			return nil, fmt.Errorf("scan milestone stat: %w", err)
		}
		st.AvgDuration = time.Duration(avgMs) * time.Millisecond
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
