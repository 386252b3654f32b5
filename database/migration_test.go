package database

import (
	"path/filepath"
	"testing"
)

// tableColumns reads PRAGMA table_info for one table into a name set.
func tableColumns(t *testing.T, db *DB, table string) map[string]bool {
	t.Helper()

	rows, err := db.conn.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             interface{}
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			t.Fatalf("scanning table_info row: %v", err)
		}
		cols[name] = true
	}
	return cols
}

func TestMigrationsFreshDatabase(t *testing.T) {
	db := newTestDB(t)

	version, err := db.getCurrentVersion()
	if err != nil {
		t.Fatalf("getCurrentVersion failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{
		"classification_requests", "classification_results", "suggested_codes",
		"tariff_lines", "chapter_notes", "job_executions", "metadata",
	}
	for _, table := range tables {
		var name string
		err := db.conn.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrationsSourceColumn(t *testing.T) {
	db := newTestDB(t)

	if cols := tableColumns(t, db, "classification_requests"); !cols["source"] {
		t.Error("Column source missing from classification_requests after migration")
	}
}

func TestMigrationsIndexes(t *testing.T) {
	db := newTestDB(t)

	indexes := []string{
		"idx_requests_status", "idx_requests_created", "idx_results_request",
		"idx_results_status", "idx_suggested_result", "idx_jobs_name_started",
	}
	for _, index := range indexes {
		var name string
		err := db.conn.QueryRow("SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", index).Scan(&name)
		if err != nil {
			t.Errorf("Expected index %s to exist: %v", index, err)
		}
	}
}

// Reopening an already migrated store must leave data and version alone.
func TestMigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	if err := db.CreateRequest("req-1", "api", testItems()); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	if err := Close(db); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer func() { _ = Close(db) }()

	req, err := db.GetRequest("req-1")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req == nil {
		t.Fatal("Expected request to survive reopen")
	}

	version, _ := db.getCurrentVersion()
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d after reopen, got %d", currentSchemaVersion, version)
	}
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)

	if err := HealthCheck(db); err != nil {
		t.Errorf("HealthCheck failed on healthy database: %v", err)
	}

	if err := HealthCheck(nil); err == nil {
		t.Error("Expected error for nil database")
	}
}
