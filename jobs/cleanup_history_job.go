package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Phat0101/AI-classifier/database"
)

// HistoryCleanupDatabase defines the database cleanup operations
type HistoryCleanupDatabase interface {
	CleanupOldRequests(retention time.Duration) (int64, error)
	CleanupOldJobExecutions(daysToKeep int) (int64, error)
}

// CleanupHistoryJob removes classification requests and job executions
// older than the retention window
type CleanupHistoryJob struct {
	db        HistoryCleanupDatabase
	retention time.Duration
}

// NewCleanupHistoryJob creates a new history cleanup job
func NewCleanupHistoryJob(db HistoryCleanupDatabase, retention time.Duration) *CleanupHistoryJob {
	if db == nil {
		panic("CleanupHistoryJob requires a non-nil database")
	}
	return &CleanupHistoryJob{
		db:        db,
		retention: retention,
	}
}

func (j *CleanupHistoryJob) Name() string {
	return "cleanup-history"
}

func (j *CleanupHistoryJob) Run(ctx context.Context) error {
	log.Printf("[cleanup-history] Starting cleanup of requests older than %v", j.retention)

	requests, err := j.db.CleanupOldRequests(j.retention)
	if err != nil {
		return fmt.Errorf("failed to cleanup old requests: %w", err)
	}

	days := int(j.retention.Hours() / 24)
	if days < 1 {
		days = 1
	}
	executions, err := j.db.CleanupOldJobExecutions(days)
	if err != nil {
		return fmt.Errorf("failed to cleanup old job executions: %w", err)
	}

	if requests > 0 || executions > 0 {
		log.Printf("[cleanup-history] Cleanup completed: removed %d requests, %d job executions", requests, executions)
	} else {
		log.Printf("[cleanup-history] Cleanup completed: nothing to remove")
	}

	return nil
}

// Ensure database.DB implements HistoryCleanupDatabase
var _ HistoryCleanupDatabase = (*database.DB)(nil)
