// Package jobs holds the scheduled background jobs of the classifier.
package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/Phat0101/AI-classifier/classification"
	"github.com/Phat0101/AI-classifier/classifying"
	"github.com/Phat0101/AI-classifier/database"
	"github.com/Phat0101/AI-classifier/tariff"
)

// SyncerInterface defines the interface for syncing the tariff schedule
type SyncerInterface interface {
	Sync(ctx context.Context) (bool, error)
}

// ReferenceDatabase defines the database operations needed by RefreshReferenceJob
type ReferenceDatabase interface {
	GetTariffLines() ([]tariff.Line, error)
	ListRequestsForReclassification() ([]string, error)
}

// EngineInterface defines the engine operations needed by RefreshReferenceJob
type EngineInterface interface {
	SetIndex(idx *classification.Index)
	Ready() bool
}

// ClassifyQueueInterface defines the interface for requeueing requests
type ClassifyQueueInterface interface {
	Enqueue(job classifying.Job) bool
}

// LoadReferenceIndex builds a search index from the locally stored
// tariff schedule. The index is empty until the first sync has run.
func LoadReferenceIndex(db ReferenceDatabase) (*classification.Index, error) {
	lines, err := db.GetTariffLines()
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff lines: %w", err)
	}

	refLines := make([]classification.ReferenceLine, 0, len(lines))
	for _, line := range lines {
		refLines = append(refLines, classification.ReferenceLine{
			HSCode:       line.Code,
			StatCode:     line.StatCode,
			Description:  line.Description,
			TariffOrders: line.TariffOrders,
		})
	}

	return classification.NewIndex(refLines), nil
}

// RefreshReferenceJob syncs the tariff schedule and, when it changed,
// rebuilds the search index and requeues requests whose items did not
// resolve against the previous schedule
type RefreshReferenceJob struct {
	syncer SyncerInterface
	db     ReferenceDatabase
	engine EngineInterface
	queue  ClassifyQueueInterface
}

// NewRefreshReferenceJob creates a new refresh reference job
func NewRefreshReferenceJob(syncer SyncerInterface, db ReferenceDatabase, engine EngineInterface, queue ClassifyQueueInterface) *RefreshReferenceJob {
	if syncer == nil {
		panic("RefreshReferenceJob requires a non-nil syncer")
	}
	if db == nil {
		panic("RefreshReferenceJob requires a non-nil database")
	}
	if engine == nil {
		panic("RefreshReferenceJob requires a non-nil engine")
	}
	if queue == nil {
		panic("RefreshReferenceJob requires a non-nil queue")
	}

	return &RefreshReferenceJob{
		syncer: syncer,
		db:     db,
		engine: engine,
		queue:  queue,
	}
}

func (j *RefreshReferenceJob) Name() string {
	return "refresh-reference"
}

func (j *RefreshReferenceJob) Run(ctx context.Context) error {
	log.Printf("[refresh-reference] Checking for tariff schedule updates...")

	hasChanged, err := j.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync tariff schedule: %w", err)
	}

	// The index is also rebuilt when the engine has none yet, which is
	// the state right after the first sync of a fresh deployment
	if !hasChanged && j.engine.Ready() {
		log.Printf("[refresh-reference] No tariff schedule changes detected, keeping current index")
		return nil
	}

	idx, err := LoadReferenceIndex(j.db)
	if err != nil {
		return fmt.Errorf("failed to rebuild reference index: %w", err)
	}
	j.engine.SetIndex(idx)
	log.Printf("[refresh-reference] Reference index rebuilt with %d tariff lines", idx.Size())

	candidates, err := j.db.ListRequestsForReclassification()
	if err != nil {
		return fmt.Errorf("failed to list reclassification candidates: %w", err)
	}

	if len(candidates) == 0 {
		log.Printf("[refresh-reference] No requests need reclassification")
		return nil
	}

	// Requests left out by a full queue keep their unresolved statuses
	// and are picked up again on the next refresh
	requeued := 0
	for _, requestID := range candidates {
		if j.queue.Enqueue(classifying.Job{RequestID: requestID, Force: true}) {
			requeued++
		}
	}

	if requeued < len(candidates) {
		log.Printf("[refresh-reference] Warning: queue full, requeued %d of %d requests", requeued, len(candidates))
	} else {
		log.Printf("[refresh-reference] Requeued %d requests for reclassification", requeued)
	}

	return nil
}

// Ensure tariff.Syncer implements SyncerInterface
var _ SyncerInterface = (*tariff.Syncer)(nil)

// Ensure database.DB implements ReferenceDatabase
var _ ReferenceDatabase = (*database.DB)(nil)

// Ensure classification.Engine implements EngineInterface
var _ EngineInterface = (*classification.Engine)(nil)

// Ensure classifying.Queue implements ClassifyQueueInterface
var _ ClassifyQueueInterface = (*classifying.Queue)(nil)
