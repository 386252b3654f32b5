// Package classifying runs stored classification requests through the
// engine in the background.
package classifying

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Phat0101/AI-classifier/classification"
	"github.com/Phat0101/AI-classifier/database"
)

// Behaviors for Enqueue when the queue is full.
const (
	FullBehaviorDrop  = "drop"
	FullBehaviorBlock = "block"
)

// requestTimeout bounds the processing of one request, including its
// Schedule 4 concession lookups.
const requestTimeout = 5 * time.Minute

// Job is a request waiting to be classified
type Job struct {
	RequestID string
	Force     bool // If true, reset unresolved items and reprocess a finished request
}

// Classifier produces a classification for a single item.
// Implemented by classification.Engine.
type Classifier interface {
	Classify(ctx context.Context, item classification.Item) (*classification.Result, error)
}

// Config controls queue capacity and the behavior when it fills up
type Config struct {
	MaxDepth     int
	FullBehavior string // "drop" or "block"
}

// Queue manages pending classification requests and processes them serially
type Queue struct {
	jobs       chan Job
	classifier Classifier
	db         *database.DB
	cfg        Config
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewQueue creates a queue and starts its worker goroutine
func NewQueue(db *database.DB, classifier Classifier, cfg Config) *Queue {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 100
	}
	if cfg.FullBehavior == "" {
		cfg.FullBehavior = FullBehaviorDrop
	}

	ctx, cancel := context.WithCancel(context.Background())

	queue := &Queue{
		jobs:       make(chan Job, cfg.MaxDepth),
		classifier: classifier,
		db:         db,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}

	queue.wg.Add(1)
	go queue.worker()

	log.Printf("[classifying] Queue initialized (max depth %d, full behavior %s)",
		cfg.MaxDepth, cfg.FullBehavior)
	return queue
}

// Enqueue adds a request to the queue. A full queue drops the job and
// returns false under the drop behavior; under the block behavior the
// call waits for space.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case <-q.ctx.Done():
		log.Println("[classifying] Queue shutting down, cannot enqueue request")
		return false
	default:
	}

	if q.cfg.FullBehavior == FullBehaviorBlock {
		select {
		case q.jobs <- job:
			log.Printf("[classifying] Enqueued request %s", job.RequestID)
			return true
		case <-q.ctx.Done():
			log.Println("[classifying] Queue shutting down, cannot enqueue request")
			return false
		}
	}

	select {
	case q.jobs <- job:
		log.Printf("[classifying] Enqueued request %s", job.RequestID)
		return true
	default:
		log.Printf("[classifying] Warning: queue is full, dropping request %s", job.RequestID)
		return false
	}
}

// EnqueueRequest is a convenience method for enqueuing a request by id
func (q *Queue) EnqueueRequest(requestID string) bool {
	return q.Enqueue(Job{RequestID: requestID})
}

// Depth returns the number of jobs waiting in the queue
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// worker processes jobs from the queue serially (one request at a time)
func (q *Queue) worker() {
	defer q.wg.Done()

	log.Println("[classifying] Worker started")

	for {
		select {
		case job := <-q.jobs:
			q.processJob(job)
		case <-q.ctx.Done():
			log.Println("[classifying] Worker shutting down")
			return
		}
	}
}

// processJob classifies every unresolved item of one request
func (q *Queue) processJob(job Job) {
	req, err := q.db.GetRequest(job.RequestID)
	if err != nil {
		log.Printf("[classifying] Error loading request %s: %v", job.RequestID, err)
		return
	}
	if req == nil {
		log.Printf("[classifying] Request %s no longer exists, skipping", job.RequestID)
		return
	}

	// Requests that already finished are not reprocessed unless forced
	if req.Status.IsTerminal() && !job.Force {
		log.Printf("[classifying] Request %s already %s, skipping", job.RequestID, req.Status)
		return
	}

	// The reset happens here rather than at enqueue time, so a dropped
	// job never leaves a request half reset
	if job.Force {
		if err := q.db.MarkRequestPending(job.RequestID); err != nil {
			log.Printf("[classifying] Error resetting request %s: %v", job.RequestID, err)
			return
		}
	}

	if err := q.db.UpdateRequestStatus(job.RequestID, database.StatusClassifying, ""); err != nil {
		log.Printf("[classifying] Error updating status for request %s: %v", job.RequestID, err)
		return
	}

	items, err := q.db.GetPendingItems(job.RequestID)
	if err != nil {
		log.Printf("[classifying] Error loading items for request %s: %v", job.RequestID, err)
		q.markFailed(job.RequestID, "failed to load request items")
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, requestTimeout)
	defer cancel()

	failed := 0
	for _, item := range items {
		if err := q.db.UpdateItemStatus(job.RequestID, item.ID, database.StatusClassifying, ""); err != nil {
			log.Printf("[classifying] Error updating status for item %s: %v", item.ID, err)
		}

		result, err := q.classifier.Classify(ctx, item)
		switch {
		case err == nil:
			if storeErr := q.db.StoreItemResult(job.RequestID, result, database.StatusCompleted); storeErr != nil {
				log.Printf("[classifying] Error storing result for item %s: %v", item.ID, storeErr)
				failed++
			}

		case errors.Is(err, classification.ErrNoMatch):
			noMatch := classification.NoMatchResult(item)
			if storeErr := q.db.StoreItemResult(job.RequestID, noMatch, database.StatusNoMatch); storeErr != nil {
				log.Printf("[classifying] Error storing no-match for item %s: %v", item.ID, storeErr)
				failed++
			}

		case errors.Is(err, classification.ErrNoReference):
			// Without a tariff reference no item can proceed, fail the
			// whole request so a later reference sync requeues it
			log.Printf("[classifying] Tariff reference not loaded, failing request %s", job.RequestID)
			q.markFailed(job.RequestID, classification.ErrNoReference.Error())
			return

		default:
			log.Printf("[classifying] Error classifying item %s: %v", item.ID, err)
			if updateErr := q.db.UpdateItemStatus(job.RequestID, item.ID, database.StatusFailed, err.Error()); updateErr != nil {
				log.Printf("[classifying] Error updating status for item %s: %v", item.ID, updateErr)
			}
			failed++
		}
	}

	if failed > 0 {
		q.markFailed(job.RequestID, fmt.Sprintf("%d of %d items failed", failed, len(items)))
		return
	}

	if err := q.db.UpdateRequestStatus(job.RequestID, database.StatusCompleted, ""); err != nil {
		log.Printf("[classifying] Error completing request %s: %v", job.RequestID, err)
		return
	}

	log.Printf("[classifying] Completed request %s (%d items)", job.RequestID, len(items))
}

func (q *Queue) markFailed(requestID, errorMsg string) {
	if err := q.db.UpdateRequestStatus(requestID, database.StatusFailed, errorMsg); err != nil {
		log.Printf("[classifying] Error failing request %s: %v", requestID, err)
	}
}

// Shutdown stops the worker after the current request finishes
func (q *Queue) Shutdown() {
	log.Println("[classifying] Shutting down queue...")
	q.cancel()
	q.wg.Wait()
	log.Println("[classifying] Queue shut down")
}
