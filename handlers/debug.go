package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Phat0101/AI-classifier/debug"
)

// QueueStats reports the current classification queue depth.
// Implemented by classifying.Queue.
type QueueStats interface {
	Depth() int
}

type queryRequest struct {
	Query string `json:"query"`
}

// queryResponse carries the column list separately so callers see the
// original ordering; rows are maps and lose it.
type queryResponse struct {
	Columns  []string                 `json:"columns"`
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
}

// DebugQueryHandler serves POST /debug/query, running a read-only SQL
// statement against the classification database. Development tooling
// only; production deployments run with debug mode off.
//
// The body carries {"query": "SELECT * FROM classification_requests LIMIT 10"}
// and the reply mirrors it back as
//
//	{
//	  "columns": ["request_id", "status"],
//	  "rows": [{"request_id": "...", "status": "completed"}],
//	  "row_count": 1
//	}
func DebugQueryHandler(db RequestQueryProvider, debugConfig *debug.DebugConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !debugConfig.IsEnabled() {
			http.Error(w, "Debug mode not enabled", http.StatusForbidden)
			return
		}

		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("[debug-api] Rejecting unparseable query body: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if req.Query == "" {
			http.Error(w, "Query is required", http.StatusBadRequest)
			return
		}

		if valid, err := debug.IsSelectQuery(req.Query); !valid {
			log.Printf("[debug-api] Query failed validation: %v", err)
			http.Error(w, fmt.Sprintf("Invalid query: %v", err), http.StatusBadRequest)
			return
		}

		result, err := db.ExecuteReadOnlyQuery(req.Query)
		if err != nil {
			log.Printf("[debug-api] Query execution failed: %v", err)
			http.Error(w, fmt.Sprintf("Query execution failed: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(queryResponse{
			Columns:  result.Columns,
			Rows:     result.Rows,
			RowCount: len(result.Rows),
		}); err != nil {
			log.Printf("[debug-api] Encoding response failed: %v", err)
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

type endpointStats struct {
	Count           int64     `json:"count"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	AvgDurationMs   float64   `json:"avg_duration_ms"`
	LastAccess      time.Time `json:"last_access"`
}

type statsResponse struct {
	RequestCount    int64                    `json:"request_count"`
	TotalDurationMs int64                    `json:"total_duration_ms"`
	QueueDepth      int                      `json:"queue_depth"`
	LastUpdated     time.Time                `json:"last_updated"`
	Endpoints       map[string]endpointStats `json:"endpoints"`
}

// DebugStatsHandler serves GET /debug/stats with the counters the logging
// middleware has accumulated: request_count, total_duration_ms, queue_depth,
// last_updated, and per-endpoint count / total_duration_ms / avg_duration_ms
// / last_access buckets keyed by "METHOD /path".
func DebugStatsHandler(debugConfig *debug.DebugConfig, queue QueueStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !debugConfig.IsEnabled() {
			http.Error(w, "Debug mode not enabled", http.StatusForbidden)
			return
		}

		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Refresh queue depth before snapshotting
		if queue != nil {
			debugConfig.SetQueueDepth(queue.Depth())
		}
		metrics := debugConfig.GetMetrics()

		endpoints := make(map[string]endpointStats, len(metrics.EndpointMetrics))
		for endpoint, em := range metrics.EndpointMetrics {
			stats := endpointStats{
				Count:           em.Count,
				TotalDurationMs: em.TotalDuration.Milliseconds(),
				LastAccess:      em.LastAccess,
			}
			if em.Count > 0 {
				stats.AvgDurationMs = float64(em.TotalDuration.Milliseconds()) / float64(em.Count)
			}
			endpoints[endpoint] = stats
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statsResponse{
			RequestCount:    metrics.RequestCount,
			TotalDurationMs: metrics.TotalDuration.Milliseconds(),
			QueueDepth:      metrics.QueueDepth,
			LastUpdated:     metrics.LastUpdated,
			Endpoints:       endpoints,
		}); err != nil {
			log.Printf("[debug-api] Encoding stats response failed: %v", err)
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// RegisterDebugHandlers wires POST /debug/query and GET /debug/stats onto
// mux. With debug mode off (or a nil config) nothing is registered and the
// routes fall through to 404.
func RegisterDebugHandlers(mux *http.ServeMux, db RequestQueryProvider, debugConfig *debug.DebugConfig, queue QueueStats) {
	if debugConfig == nil || !debugConfig.IsEnabled() {
		return
	}

	mux.HandleFunc("/debug/query", DebugQueryHandler(db, debugConfig))
	mux.HandleFunc("/debug/stats", DebugStatsHandler(debugConfig, queue))

	log.Println("Debug handlers registered at /debug/query and /debug/stats")
}
