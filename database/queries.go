package database

import (
	"fmt"
	"log"
	"time"
)

// QueryResult is a query response whose column order survives JSON
// encoding; iterating the row maps alone would scramble it.
type QueryResult struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// ExecuteReadOnlyQuery executes a read-only SQL query and returns results with
// column order preserved.
//
// This method is intended for debug/diagnostic purposes only and should only be
// called from the debug SQL handler after proper validation.
//
// WARNING: This method does NOT validate the SQL query. The caller MUST ensure
// the query is safe before calling this method. Use debug.IsSelectQuery() to
// validate queries.
func (db *DB) ExecuteReadOnlyQuery(query string) (*QueryResult, error) {
	log.Printf("[DEBUG SQL] Running: %s", query)
	start := time.Now()

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Warning: rows close failed: %v", err)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	// Scan targets are reused across rows; each row copies its values
	// out before the next Scan overwrites them.
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var results []map[string]interface{}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// SQLite hands text back as []byte; raw JSON would base64 it
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	log.Printf("[DEBUG SQL] %d rows in %v", len(results), time.Since(start))

	return &QueryResult{
		Columns: columns,
		Rows:    results,
	}, nil
}
