package database

import (
	"database/sql"
	"fmt"
	"log"
)

const currentSchemaVersion = 2

// schemaSteps are applied in order; entry i upgrades the schema from
// version i to version i+1. Append only, never reorder.
var schemaSteps = []struct {
	name  string
	apply func(*sql.DB) error
}{
	{"initial_schema", createBaseTables},
	{"request_source_and_indexes", addSourceAndIndexes},
}

// ensureSchemaVersion brings the schema up to currentSchemaVersion,
// applying whatever steps the database has not recorded yet.
func (db *DB) ensureSchemaVersion() error {
	_, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := db.getCurrentVersion()
	if err != nil {
		return err
	}
	log.Printf("Current database schema version: %d, target version: %d", current, currentSchemaVersion)

	for i, step := range schemaSteps {
		version := i + 1
		if version <= current {
			continue
		}

		log.Printf("Applying migration %d: %s", version, step.name)
		if err := step.apply(db.conn); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", version, step.name, err)
		}
		if _, err := db.conn.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", version, step.name); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		log.Printf("Successfully applied migration %d: %s", version, step.name)
	}

	return nil
}

// getCurrentVersion reads the highest recorded migration version, 0 on
// a fresh database.
func (db *DB) getCurrentVersion() (int, error) {
	var version int
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

func createBaseTables(conn *sql.DB) error {
	_, err := conn.Exec(`
		-- Classification request batches
		CREATE TABLE IF NOT EXISTS classification_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'pending',
			status_error TEXT,
			item_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		);

		-- Per-item classification outcomes
		CREATE TABLE IF NOT EXISTS classification_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			item_description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			status_error TEXT,
			best_hs_code TEXT,
			best_stat_code TEXT,
			best_tco_link TEXT,
			schedule4_text TEXT,
			reasoning TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(request_id, item_id)
		);

		-- Alternate code suggestions per result, ordered by position
		CREATE TABLE IF NOT EXISTS suggested_codes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			result_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			hs_code TEXT NOT NULL,
			stat_code TEXT NOT NULL,
			tco_link TEXT,
			FOREIGN KEY(result_id) REFERENCES classification_results(id)
		);

		-- Local copy of the tariff schedule
		CREATE TABLE IF NOT EXISTS tariff_lines (
			code TEXT NOT NULL,
			stat_code TEXT NOT NULL,
			description TEXT NOT NULL,
			unit_of_qty TEXT,
			general_rate TEXT,
			tariff_orders INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(code, stat_code)
		);

		CREATE TABLE IF NOT EXISTS chapter_notes (
			code TEXT PRIMARY KEY,
			title TEXT,
			notes TEXT
		);

		-- Scheduled job history
		CREATE TABLE IF NOT EXISTS job_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			status TEXT NOT NULL,
			error_message TEXT,
			duration_ms INTEGER
		);

		-- Service metadata (deployment id, reference sync state)
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// addSourceAndIndexes adds the request source column and the query
// indexes the history endpoints and the reclassification job depend on.
func addSourceAndIndexes(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("ALTER TABLE classification_requests ADD COLUMN source TEXT NOT NULL DEFAULT 'api'"); err != nil {
		return fmt.Errorf("failed to add source column: %w", err)
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_requests_status ON classification_requests(status);
		CREATE INDEX IF NOT EXISTS idx_requests_created ON classification_requests(created_at);
		CREATE INDEX IF NOT EXISTS idx_results_request ON classification_results(request_id);
		CREATE INDEX IF NOT EXISTS idx_results_status ON classification_results(status);
		CREATE INDEX IF NOT EXISTS idx_suggested_result ON suggested_codes(result_id);
		CREATE INDEX IF NOT EXISTS idx_jobs_name_started ON job_executions(job_name, started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return tx.Commit()
}
