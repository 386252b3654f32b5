// Package handlers implements the HTTP surface of the classifier:
// the service endpoints (health, readiness, info), the classification
// API, the stored history, and the debug console.
package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
)

// InfoProvider supplies the payload served at /info. The concrete value
// is encoded as-is.
type InfoProvider interface {
	GetInfo() interface{}
}

// ReadinessChecker reports whether the tariff reference index is loaded.
// Implemented by classification.Engine.
type ReadinessChecker interface {
	Ready() bool
}

// writeError writes a JSON error response in the API error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Printf("Error encoding error response: %v", err)
	}
}

// RootHandler serves the banner message on the root path. The default mux
// routes every otherwise unmatched path here, so anything but "/" itself
// is a 404.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"message": "Hello World"}); err != nil {
		log.Printf("Error encoding root response: %v", err)
	}
}

// HealthHandler returns the liveness response for health checks
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "healthy"}); err != nil {
		log.Printf("Error writing health response: %v", err)
	}
}

// ItemsHandler handles GET /items/{item_id}. The id must be an integer;
// the optional q query parameter is echoed back, null when absent.
func ItemsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	const prefix = "/items/"
	idStr := r.URL.Path[len(prefix):]
	itemID, err := strconv.Atoi(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("item_id must be an integer, got %q", idStr))
		return
	}

	var q *string
	if r.URL.Query().Has("q") {
		value := r.URL.Query().Get("q")
		q = &value
	}

	response := struct {
		ItemID int     `json:"item_id"`
		Q      *string `json:"q"`
	}{ItemID: itemID, Q: q}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding item response: %v", err)
	}
}

// ReadinessHandler returns a handler that reports classification readiness.
// Returns 200 OK once the tariff reference index is loaded, 503 Service
// Unavailable before the first sync has populated it.
func ReadinessHandler(engine ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}

		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready: tariff reference not loaded"))
	}
}

// InfoHandler serves the provider's description at /info.
func InfoHandler(provider InfoProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := provider.GetInfo()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Printf("Error encoding info response: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

// RegisterHandlers registers the standard service endpoints (/, /health,
// /ready, /info and /items/) on the provided mux
func RegisterHandlers(mux *http.ServeMux, provider InfoProvider, engine ReadinessChecker) {
	mux.HandleFunc("/", RootHandler)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ready", ReadinessHandler(engine))
	mux.HandleFunc("/info", InfoHandler(provider))
	mux.HandleFunc("/items/", ItemsHandler)
}
