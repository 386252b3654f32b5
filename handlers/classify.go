package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Phat0101/AI-classifier/classification"
	"github.com/Phat0101/AI-classifier/database"
)

// maxItemsPerRequest caps the batch size accepted by the classify endpoints.
const maxItemsPerRequest = 100

// Classifier runs classification for a single item.
// Implemented by classification.Engine.
type Classifier interface {
	Classify(ctx context.Context, item classification.Item) (*classification.Result, error)
}

// ClassificationStore persists classification requests and their results.
// Implemented by database.DB.
type ClassificationStore interface {
	CreateRequest(requestID, source string, items []classification.Item) error
	UpdateRequestStatus(requestID string, status database.Status, errorMsg string) error
	StoreItemResult(requestID string, result *classification.Result, status database.Status) error
}

// RequestEnqueuer hands a stored request to the background queue.
// Implemented by classifying.Queue.
type RequestEnqueuer interface {
	EnqueueRequest(requestID string) bool
}

// validateRequest checks a decoded batch against the API limits and fills
// in ordinal item ids where the client left them empty.
func validateRequest(req *classification.Request) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("items must not be empty")
	}
	if len(req.Items) > maxItemsPerRequest {
		return fmt.Errorf("too many items: %d exceeds the limit of %d per request", len(req.Items), maxItemsPerRequest)
	}

	seen := make(map[string]bool, len(req.Items))
	for i := range req.Items {
		if req.Items[i].ID == "" {
			req.Items[i].ID = strconv.Itoa(i + 1)
		}
		if seen[req.Items[i].ID] {
			return fmt.Errorf("duplicate item id %q", req.Items[i].ID)
		}
		seen[req.Items[i].ID] = true

		if strings.TrimSpace(req.Items[i].Description) == "" {
			return fmt.Errorf("item %q has an empty description", req.Items[i].ID)
		}
	}
	return nil
}

// ClassifyHandler handles POST /api/classify - synchronous classification.
// The whole batch runs inline and the results come back in the response
// body. The request is persisted to history the same way async requests are.
func ClassifyHandler(engine Classifier, store ClassificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req classification.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := validateRequest(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		requestID := uuid.NewString()
		if err := store.CreateRequest(requestID, "sync", req.Items); err != nil {
			log.Printf("[classify-api] Failed to store request %s: %v", requestID, err)
			writeError(w, http.StatusInternalServerError, "failed to store request")
			return
		}

		results := make([]classification.Result, 0, len(req.Items))
		for _, item := range req.Items {
			result, err := engine.Classify(r.Context(), item)
			switch {
			case err == nil:
				if err := store.StoreItemResult(requestID, result, database.StatusCompleted); err != nil {
					log.Printf("[classify-api] Failed to store result for %s item %s: %v", requestID, item.ID, err)
				}
				results = append(results, *result)

			case errors.Is(err, classification.ErrNoMatch):
				result := classification.NoMatchResult(item)
				if err := store.StoreItemResult(requestID, result, database.StatusNoMatch); err != nil {
					log.Printf("[classify-api] Failed to store result for %s item %s: %v", requestID, item.ID, err)
				}
				results = append(results, *result)

			case errors.Is(err, classification.ErrNoReference):
				if err := store.UpdateRequestStatus(requestID, database.StatusFailed, classification.ErrNoReference.Error()); err != nil {
					log.Printf("[classify-api] Failed to mark request %s failed: %v", requestID, err)
				}
				writeError(w, http.StatusServiceUnavailable, "tariff reference not loaded yet, retry later")
				return

			default:
				log.Printf("[classify-api] Classification failed for %s item %s: %v", requestID, item.ID, err)
				if err := store.UpdateRequestStatus(requestID, database.StatusFailed, err.Error()); err != nil {
					log.Printf("[classify-api] Failed to mark request %s failed: %v", requestID, err)
				}
				writeError(w, http.StatusInternalServerError, "classification failed")
				return
			}
		}

		if err := store.UpdateRequestStatus(requestID, database.StatusCompleted, ""); err != nil {
			log.Printf("[classify-api] Failed to complete request %s: %v", requestID, err)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(classification.Response{Results: results}); err != nil {
			log.Printf("[classify-api] Error encoding response: %v", err)
		}
	}
}

// ClassifyAsyncHandler handles POST /api/classify/async. The request is
// validated, stored as pending and handed to the background queue; the
// response carries the request id for later result polling.
func ClassifyAsyncHandler(store ClassificationStore, queue RequestEnqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req classification.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := validateRequest(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		requestID := uuid.NewString()
		if err := store.CreateRequest(requestID, "async", req.Items); err != nil {
			log.Printf("[classify-api] Failed to store request %s: %v", requestID, err)
			writeError(w, http.StatusInternalServerError, "failed to store request")
			return
		}

		if !queue.EnqueueRequest(requestID) {
			// The stored request keeps its items; a failed status makes the
			// refresh job requeue it after the next reference sync.
			if err := store.UpdateRequestStatus(requestID, database.StatusFailed, "classification queue full"); err != nil {
				log.Printf("[classify-api] Failed to mark request %s failed: %v", requestID, err)
			}
			writeError(w, http.StatusServiceUnavailable, "classification queue is full, retry later")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"request_id": requestID,
			"status":     database.StatusPending.String(),
		}); err != nil {
			log.Printf("[classify-api] Error encoding response: %v", err)
		}
	}
}
