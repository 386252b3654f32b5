package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/Phat0101/AI-classifier/database"
)

// RequestQueryProvider executes read-only queries for the history endpoints.
// Implemented by database.DB.
type RequestQueryProvider interface {
	ExecuteReadOnlyQuery(query string) (*database.QueryResult, error)
}

// HistoryStore loads stored requests and their per-item results.
// Implemented by database.DB.
type HistoryStore interface {
	GetRequest(requestID string) (*database.ClassificationRequest, error)
	GetResults(requestID string) ([]database.ItemResult, error)
}

// ClassificationDatabase groups the persistence operations the API
// handlers use. Implemented by database.DB.
type ClassificationDatabase interface {
	ClassificationStore
	HistoryStore
	RequestQueryProvider
}

// ClassificationsHandler handles GET /api/classifications - the stored
// request history with paging, search, status filter, and sorting.
func ClassificationsHandler(provider RequestQueryProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		params := r.URL.Query()

		// Pagination
		page, _ := strconv.Atoi(params.Get("page"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(params.Get("pageSize"))
		if pageSize < 1 || pageSize > 200 {
			pageSize = 50
		}
		offset := (page - 1) * pageSize

		// Search
		search := params.Get("search")

		// Status filter (multiselect - comma separated)
		statuses := parseMultiSelect(params.Get("status"))

		// Sorting
		sortBy := params.Get("sortBy")
		sortOrder := params.Get("sortOrder")
		if sortOrder != "ASC" && sortOrder != "DESC" {
			sortOrder = "DESC"
		}

		// Build query
		query, countQuery := buildRequestsQuery(search, statuses, sortBy, sortOrder, pageSize, offset)

		// Count first; it sizes the paging envelope
		countResult, err := provider.ExecuteReadOnlyQuery(countQuery)
		if err != nil {
			log.Printf("Error executing count query: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		totalCount := 0
		if len(countResult.Rows) > 0 && len(countResult.Columns) > 0 {
			if count, ok := countResult.Rows[0][countResult.Columns[0]].(int64); ok {
				totalCount = int(count)
			}
		}

		// Execute main query
		result, err := provider.ExecuteReadOnlyQuery(query)
		if err != nil {
			log.Printf("Error executing history query: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		response := map[string]interface{}{
			"requests":   result.Rows,
			"page":       page,
			"pageSize":   pageSize,
			"totalCount": totalCount,
			"totalPages": (totalCount + pageSize - 1) / pageSize,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("Error encoding JSON: %v", err)
		}
	}
}

// parseMultiSelect splits a comma separated filter value, dropping
// blank entries.
func parseMultiSelect(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// buildRequestsQuery constructs the history SQL query with filters
func buildRequestsQuery(search string, statuses []string, sortBy, sortOrder string, limit, offset int) (string, string) {
	baseQuery := `
  FROM classification_requests
  WHERE 1=1`

	var conditions []string

	// Search filter (request id or any item description in the batch)
	if search != "" {
		escapedSearch := strings.ReplaceAll(search, "'", "''")
		conditions = append(conditions, fmt.Sprintf(
			"(request_id LIKE '%%%s%%' OR request_id IN (SELECT request_id FROM classification_results WHERE item_description LIKE '%%%s%%'))",
			escapedSearch, escapedSearch))
	}

	// Status filter
	if len(statuses) > 0 {
		escaped := make([]string, len(statuses))
		for i, s := range statuses {
			escaped[i] = "'" + strings.ReplaceAll(s, "'", "''") + "'"
		}
		conditions = append(conditions, "status IN ("+strings.Join(escaped, ",")+")")
	}

	whereClause := baseQuery
	if len(conditions) > 0 {
		whereClause += " AND " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*)" + whereClause

	selectClause := `SELECT
      request_id,
      status,
      status_error,
      source,
      item_count,
      created_at AS submitted_at,
      updated_at,
      completed_at`

	mainQuery := selectClause + whereClause

	// Multi-level sort: user-selected column first, newest submissions as
	// tie-break so paging stays stable
	validSortColumns := map[string]string{
		"submitted_at": "created_at",
		"item_count":   "item_count",
		"status":       "status",
	}

	if column, ok := validSortColumns[sortBy]; ok {
		mainQuery += fmt.Sprintf(" ORDER BY %s %s", column, sortOrder)
		if sortBy != "submitted_at" {
			mainQuery += ", created_at DESC"
		}
		mainQuery += ", id DESC"
	} else {
		mainQuery += " ORDER BY created_at DESC, id DESC"
	}

	// Add pagination
	if limit > 0 {
		mainQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}

	return mainQuery, countQuery
}

// ClassificationResultsHandler handles GET /api/classifications/results.
// The request_id query parameter selects the stored request; the response
// carries the request envelope plus the per-item results.
func ClassificationResultsHandler(store HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		requestID := r.URL.Query().Get("request_id")
		if requestID == "" {
			writeError(w, http.StatusBadRequest, "request_id query parameter is required")
			return
		}

		request, err := store.GetRequest(requestID)
		if err != nil {
			log.Printf("[classify-api] Failed to load request %s: %v", requestID, err)
			writeError(w, http.StatusInternalServerError, "failed to load request")
			return
		}
		if request == nil {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}

		results, err := store.GetResults(requestID)
		if err != nil {
			log.Printf("[classify-api] Failed to load results for %s: %v", requestID, err)
			writeError(w, http.StatusInternalServerError, "failed to load results")
			return
		}

		// An empty result set serializes as [], not null
		if results == nil {
			results = []database.ItemResult{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"request": request,
			"results": results,
		}); err != nil {
			log.Printf("[classify-api] Error encoding results response: %v", err)
		}
	}
}

// RegisterClassificationHandlers registers the classification API endpoints
func RegisterClassificationHandlers(mux *http.ServeMux, engine Classifier, db ClassificationDatabase, queue RequestEnqueuer) {
	mux.HandleFunc("/api/classify", ClassifyHandler(engine, db))
	mux.HandleFunc("/api/classify/async", ClassifyAsyncHandler(db, queue))
	mux.HandleFunc("/api/classifications", ClassificationsHandler(db))
	mux.HandleFunc("/api/classifications/results", ClassificationResultsHandler(db))
}
