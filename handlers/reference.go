package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Phat0101/AI-classifier/database"
)

// ReferenceStatusProvider reports the state of the synced tariff reference.
// Implemented by database.DB.
type ReferenceStatusProvider interface {
	GetReferenceStatus() (*database.ReferenceStatus, error)
}

// ReferenceStatusHandler handles GET /api/reference/status - line and
// chapter counts, dataset checksum, and the last successful sync time.
func ReferenceStatusHandler(store ReferenceStatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status, err := store.GetReferenceStatus()
		if err != nil {
			log.Printf("[reference-api] Failed to load reference status: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("[reference-api] Error encoding status response: %v", err)
		}
	}
}

// RegisterReferenceHandlers registers the tariff reference endpoints
func RegisterReferenceHandlers(mux *http.ServeMux, store ReferenceStatusProvider) {
	mux.HandleFunc("/api/reference/status", ReferenceStatusHandler(store))
}
