package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Phat0101/AI-classifier/classification"
)

// ClassificationRequest is a stored classification batch
type ClassificationRequest struct {
	ID          int64      `json:"id"`
	RequestID   string     `json:"request_id"`
	Status      Status     `json:"status"`
	StatusError *string    `json:"status_error,omitempty"`
	Source      string     `json:"source"`
	ItemCount   int        `json:"item_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ItemResult is a stored per-item classification outcome
type ItemResult struct {
	ID              int64                 `json:"id"`
	RequestID       string                `json:"request_id"`
	ItemID          string                `json:"item_id"`
	ItemDescription string                `json:"item_description"`
	Status          Status                `json:"status"`
	StatusError     *string               `json:"status_error,omitempty"`
	BestHSCode      string                `json:"best_hs_code"`
	BestStatCode    string                `json:"best_stat_code"`
	BestTCOLink     *string               `json:"best_tco_link"`
	Schedule4Text   *string               `json:"schedule4_text"`
	Reasoning       string                `json:"reasoning"`
	SuggestedCodes  []StoredSuggestedCode `json:"suggested_codes"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// StoredSuggestedCode is an alternate suggestion attached to a result
type StoredSuggestedCode struct {
	HSCode   string  `json:"hs_code"`
	StatCode string  `json:"stat_code"`
	TCOLink  *string `json:"tco_link"`
}

// CreateRequest stores a new classification batch with one pending result
// row per item
func (db *DB) CreateRequest(requestID, source string, items []classification.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("request must contain at least one item")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO classification_requests (request_id, status, source, item_count)
		VALUES (?, ?, ?, ?)
	`, requestID, StatusPending.String(), source, len(items))
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(`
			INSERT INTO classification_results (request_id, item_id, item_description, status)
			VALUES (?, ?, ?, ?)
		`, requestID, item.ID, item.Description, StatusPending.String())
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRequest returns a stored request by its public id, or nil if unknown
func (db *DB) GetRequest(requestID string) (*ClassificationRequest, error) {
	row := db.conn.QueryRow(`
		SELECT id, request_id, status, status_error, source, item_count,
		       created_at, updated_at, completed_at
		FROM classification_requests
		WHERE request_id = ?
	`, requestID)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// ListRequests returns stored requests, newest first
func (db *DB) ListRequests(limit, offset int) ([]ClassificationRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.Query(`
		SELECT id, request_id, status, status_error, source, item_count,
		       created_at, updated_at, completed_at
		FROM classification_requests
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var requests []ClassificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		requests = append(requests, *req)
	}

	return requests, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*ClassificationRequest, error) {
	var req ClassificationRequest
	var statusError sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&req.ID, &req.RequestID, (*string)(&req.Status), &statusError,
		&req.Source, &req.ItemCount, &req.CreatedAt, &req.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if statusError.Valid {
		req.StatusError = &statusError.String
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}

	return &req, nil
}

// UpdateRequestStatus moves a request through its lifecycle. Terminal
// statuses also set completed_at.
func (db *DB) UpdateRequestStatus(requestID string, status Status, errorMsg string) error {
	var completedAt interface{}
	if status.IsTerminal() {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}

	var statusError interface{}
	if errorMsg != "" {
		statusError = errorMsg
	}

	result, err := db.conn.Exec(`
		UPDATE classification_requests
		SET status = ?,
		    status_error = ?,
		    completed_at = COALESCE(?, completed_at),
		    updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ?
	`, status.String(), statusError, completedAt, requestID)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("request %s not found", requestID)
	}

	return nil
}

// UpdateItemStatus moves a single item through its lifecycle
func (db *DB) UpdateItemStatus(requestID, itemID string, status Status, errorMsg string) error {
	var statusError interface{}
	if errorMsg != "" {
		statusError = errorMsg
	}

	_, err := db.conn.Exec(`
		UPDATE classification_results
		SET status = ?,
		    status_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND item_id = ?
	`, status.String(), statusError, requestID, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	return nil
}

// StoreItemResult records a finished classification for one item and
// replaces its alternate suggestions
func (db *DB) StoreItemResult(requestID string, result *classification.Result, status Status) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		UPDATE classification_results
		SET status = ?,
		    status_error = NULL,
		    best_hs_code = ?,
		    best_stat_code = ?,
		    best_tco_link = ?,
		    schedule4_text = ?,
		    reasoning = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND item_id = ?
	`, status.String(), result.BestSuggestedHSCode, result.BestSuggestedStatCode,
		result.BestSuggestedTCOLink, result.Schedule4ConcessionText, result.Reasoning,
		requestID, result.ID)
	if err != nil {
		return fmt.Errorf("failed to store item result: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("item %s not found in request %s", result.ID, requestID)
	}

	var resultRowID int64
	err = tx.QueryRow(`
		SELECT id FROM classification_results WHERE request_id = ? AND item_id = ?
	`, requestID, result.ID).Scan(&resultRowID)
	if err != nil {
		return fmt.Errorf("failed to resolve result row: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM suggested_codes WHERE result_id = ?`, resultRowID)
	if err != nil {
		return fmt.Errorf("failed to clear old suggestions: %w", err)
	}

	for i, sc := range result.SuggestedCodes {
		_, err = tx.Exec(`
			INSERT INTO suggested_codes (result_id, position, hs_code, stat_code, tco_link)
			VALUES (?, ?, ?, ?, ?)
		`, resultRowID, i, sc.HSCode, sc.StatCode, sc.TCOLink)
		if err != nil {
			return fmt.Errorf("failed to insert suggestion %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetResults returns the per-item outcomes of a request with their
// alternate suggestions, in item insertion order
func (db *DB) GetResults(requestID string) ([]ItemResult, error) {
	rows, err := db.conn.Query(`
		SELECT id, request_id, item_id, item_description, status, status_error,
		       best_hs_code, best_stat_code, best_tco_link, schedule4_text, reasoning,
		       created_at, updated_at
		FROM classification_results
		WHERE request_id = ?
		ORDER BY id ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ItemResult
	byRowID := make(map[int64]int)
	for rows.Next() {
		var ir ItemResult
		var statusError, bestHS, bestStat, bestTCO, sched4, reasoning sql.NullString

		err := rows.Scan(&ir.ID, &ir.RequestID, &ir.ItemID, &ir.ItemDescription,
			(*string)(&ir.Status), &statusError, &bestHS, &bestStat, &bestTCO,
			&sched4, &reasoning, &ir.CreatedAt, &ir.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		if statusError.Valid {
			ir.StatusError = &statusError.String
		}
		ir.BestHSCode = bestHS.String
		ir.BestStatCode = bestStat.String
		if bestTCO.Valid {
			ir.BestTCOLink = &bestTCO.String
		}
		if sched4.Valid {
			ir.Schedule4Text = &sched4.String
		}
		ir.Reasoning = reasoning.String
		ir.SuggestedCodes = []StoredSuggestedCode{}

		byRowID[ir.ID] = len(results)
		results = append(results, ir)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return results, nil
	}

	scRows, err := db.conn.Query(`
		SELECT sc.result_id, sc.hs_code, sc.stat_code, sc.tco_link
		FROM suggested_codes sc
		JOIN classification_results cr ON sc.result_id = cr.id
		WHERE cr.request_id = ?
		ORDER BY sc.result_id, sc.position
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = scRows.Close() }()

	for scRows.Next() {
		var resultID int64
		var sc StoredSuggestedCode
		var tcoLink sql.NullString

		if err := scRows.Scan(&resultID, &sc.HSCode, &sc.StatCode, &tcoLink); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", err)
		}
		if tcoLink.Valid {
			sc.TCOLink = &tcoLink.String
		}

		if i, found := byRowID[resultID]; found {
			results[i].SuggestedCodes = append(results[i].SuggestedCodes, sc)
		}
	}

	return results, scRows.Err()
}

// GetPendingItems returns the items of a request still awaiting a
// classification outcome
func (db *DB) GetPendingItems(requestID string) ([]classification.Item, error) {
	rows, err := db.conn.Query(`
		SELECT item_id, item_description
		FROM classification_results
		WHERE request_id = ? AND status NOT IN (?, ?)
		ORDER BY id ASC
	`, requestID, StatusCompleted.String(), StatusNoMatch.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []classification.Item
	for rows.Next() {
		var item classification.Item
		if err := rows.Scan(&item.ID, &item.Description); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ListRequestsForReclassification returns ids of requests a tariff
// reference update might now resolve: requests holding unmatched or
// failed items, plus requests that failed outright
func (db *DB) ListRequestsForReclassification() ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT request_id
		FROM classification_results
		WHERE status IN (?, ?)
		UNION
		SELECT request_id
		FROM classification_requests
		WHERE status = ?
		ORDER BY request_id
	`, StatusNoMatch.String(), StatusFailed.String(), StatusFailed.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query reclassification candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan request id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// MarkRequestPending resets a request and its unresolved items so the
// queue can pick it up again
func (db *DB) MarkRequestPending(requestID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		UPDATE classification_requests
		SET status = ?, status_error = NULL, completed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ?
	`, StatusPending.String(), requestID)
	if err != nil {
		return fmt.Errorf("failed to reset request: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE classification_results
		SET status = ?, status_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND status IN (?, ?)
	`, StatusPending.String(), requestID, StatusNoMatch.String(), StatusFailed.String())
	if err != nil {
		return fmt.Errorf("failed to reset items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CleanupOldRequests removes terminal requests older than the retention
// window, with their results and suggestions. Returns the number of
// requests removed.
func (db *DB) CleanupOldRequests(retention time.Duration) (int64, error) {
	// Compare in SQLite's own datetime format, created_at is written by
	// CURRENT_TIMESTAMP.
	cutoffHours := int(retention.Hours())

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		DELETE FROM suggested_codes
		WHERE result_id IN (
			SELECT cr.id FROM classification_results cr
			JOIN classification_requests req ON cr.request_id = req.request_id
			WHERE req.created_at < datetime('now', '-' || ? || ' hours')
			  AND req.status IN (?, ?, ?)
		)
	`, cutoffHours, StatusCompleted.String(), StatusNoMatch.String(), StatusFailed.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old suggestions: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM classification_results
		WHERE request_id IN (
			SELECT request_id FROM classification_requests
			WHERE created_at < datetime('now', '-' || ? || ' hours')
			  AND status IN (?, ?, ?)
		)
	`, cutoffHours, StatusCompleted.String(), StatusNoMatch.String(), StatusFailed.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old results: %w", err)
	}

	result, err := tx.Exec(`
		DELETE FROM classification_requests
		WHERE created_at < datetime('now', '-' || ? || ' hours')
		  AND status IN (?, ?, ?)
	`, cutoffHours, StatusCompleted.String(), StatusNoMatch.String(), StatusFailed.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
