package database

import "fmt"

// ClassificationStats aggregates request and item counts by status for
// the stats endpoint and the metrics collector.
type ClassificationStats struct {
	TotalRequests    int            `json:"total_requests"`
	TotalItems       int            `json:"total_items"`
	RequestsByStatus map[string]int `json:"requests_by_status"`
	ItemsByStatus    map[string]int `json:"items_by_status"`
}

// GetClassificationStats counts stored requests and items per status.
func (db *DB) GetClassificationStats() (*ClassificationStats, error) {
	stats := &ClassificationStats{
		RequestsByStatus: make(map[string]int),
		ItemsByStatus:    make(map[string]int),
	}

	rows, err := db.conn.Query(`
		SELECT status, COUNT(*) FROM classification_requests GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan request count: %w", err)
		}
		stats.RequestsByStatus[status] = count
		stats.TotalRequests += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := db.conn.Query(`
		SELECT status, COUNT(*) FROM classification_results GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var status string
		var count int
		if err := itemRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan item count: %w", err)
		}
		stats.ItemsByStatus[status] = count
		stats.TotalItems += count
	}

	return stats, itemRows.Err()
}
