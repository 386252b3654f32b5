package database

import (
	"database/sql"
	"fmt"
	"time"
)

// JobExecution is one row of scheduled-job history, as served by the
// debug job endpoints
type JobExecution struct {
	ID           int64      `json:"id"`
	JobName      string     `json:"job_name"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
}

const jobExecutionColumns = "id, job_name, started_at, completed_at, status, error_message, duration_ms"

// RecordJobStart opens an execution row in the running state and returns
// its row ID for the matching success or failure call.
func (db *DB) RecordJobStart(jobName string) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO job_executions (job_name, started_at, status) VALUES (?, ?, 'running')`,
		jobName, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record job start: %w", err)
	}
	return res.LastInsertId()
}

// RecordJobSuccess closes an execution row as completed
func (db *DB) RecordJobSuccess(executionID int64) error {
	return db.closeJobExecution(executionID, "completed", nil)
}

// RecordJobFailure closes an execution row as failed with the error text
func (db *DB) RecordJobFailure(executionID int64, errorMsg string) error {
	return db.closeJobExecution(executionID, "failed", &errorMsg)
}

// closeJobExecution stamps the end of an execution. Duration is computed
// in SQL from the stored start time, so it stays consistent even if the
// process clock moved between start and end.
func (db *DB) closeJobExecution(executionID int64, status string, errorMsg *string) error {
	completedAt := time.Now().UTC()

	_, err := db.conn.Exec(`
		UPDATE job_executions
		SET completed_at = ?, status = ?, error_message = ?,
			duration_ms = (julianday(?) - julianday(started_at)) * 86400000
		WHERE id = ?
	`, completedAt, status, errorMsg, completedAt, executionID)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", status, err)
	}

	return nil
}

// GetJobExecutions returns recent job executions, newest first. An empty
// jobName lists every job; limit <= 0 falls back to 100.
func (db *DB) GetJobExecutions(jobName string, limit int) ([]JobExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + jobExecutionColumns + " FROM job_executions"
	args := make([]interface{}, 0, 2)
	if jobName != "" {
		query += " WHERE job_name = ?"
		args = append(args, jobName)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var executions []JobExecution
	for rows.Next() {
		exec, err := scanJobExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job execution: %w", err)
		}
		executions = append(executions, *exec)
	}

	return executions, rows.Err()
}

// GetLastJobExecution returns the most recent execution for a specific job,
// or nil if the job has never run
func (db *DB) GetLastJobExecution(jobName string) (*JobExecution, error) {
	row := db.conn.QueryRow(
		"SELECT "+jobExecutionColumns+" FROM job_executions WHERE job_name = ? ORDER BY started_at DESC LIMIT 1",
		jobName)

	exec, err := scanJobExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last job execution: %w", err)
	}

	return exec, nil
}

func scanJobExecution(row rowScanner) (*JobExecution, error) {
	var exec JobExecution
	var completedAt sql.NullTime
	var errorMsg sql.NullString
	var durationMs sql.NullInt64

	if err := row.Scan(&exec.ID, &exec.JobName, &exec.StartedAt, &completedAt,
		&exec.Status, &errorMsg, &durationMs); err != nil {
		return nil, err
	}

	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		exec.ErrorMessage = &errorMsg.String
	}
	if durationMs.Valid {
		exec.DurationMs = &durationMs.Int64
	}

	return &exec, nil
}

// CleanupOldJobExecutions removes executions whose start time is older
// than daysToKeep days and reports how many rows went away.
func (db *DB) CleanupOldJobExecutions(daysToKeep int) (int64, error) {
	result, err := db.conn.Exec(
		"DELETE FROM job_executions WHERE started_at < datetime('now', '-' || ? || ' days')",
		daysToKeep)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old job executions: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
