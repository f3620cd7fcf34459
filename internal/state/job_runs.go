package state

import (
	"context"
	"fmt"
	"time"
)

// JobRun is the run history of one keeper job.
type JobRun struct {
	Name         string    `json:"name"`
	RunCount     int       `json:"run_count"`
	FailureCount int       `json:"failure_count"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecordJobRun bumps the counters of a job; runErr is the outcome of the run.
func RecordJobRun(ctx context.Context, name string, runErr error) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	failed := 0
	lastError := ""
	if runErr != nil {
		failed = 1
		lastError = runErr.Error()
	}

	_, err := DB.ExecContext(ctx, `
		INSERT INTO job_runs (job_name, run_count, failure_count, last_error, updated_at)
		VALUES ($1, 1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (job_name) DO UPDATE SET
			run_count = job_runs.run_count + 1,
			failure_count = job_runs.failure_count + EXCLUDED.failure_count,
			last_error = EXCLUDED.last_error,
			updated_at = CURRENT_TIMESTAMP;`,
		name, failed, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to record run of job %s: %w", name, err)
	}
	return nil
}

// GetJobRuns lists every job that has run at least once.
func GetJobRuns(ctx context.Context) ([]JobRun, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := DB.QueryContext(ctx, "SELECT job_name, run_count, failure_count, last_error, updated_at FROM job_runs ORDER BY job_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}
	defer rows.Close()

	runs := []JobRun{}
	for rows.Next() {
		var run JobRun
		if err := rows.Scan(&run.Name, &run.RunCount, &run.FailureCount, &run.LastError, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
