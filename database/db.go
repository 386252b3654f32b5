// Package database persists classification requests, their results and
// the local tariff reference copy in SQLite.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Phat0101/AI-classifier/sqlitedriver"
)

// DB is the handle all store operations go through. The process opens
// exactly one.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite store at dbPath, creating parent directories as
// needed, and migrates the schema. A corrupt store is wiped and rebuilt:
// the tariff reference is re-fetched on the next refresh and request
// history is expendable.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := open(dbPath)
	if err == nil {
		return db, nil
	}
	if !isCorruptionError(err) {
		return nil, err
	}

	log.Printf("Database corruption detected: %v", err)
	log.Printf("Deleting corrupted database and starting fresh...")
	if rmErr := removeStore(dbPath); rmErr != nil {
		return nil, fmt.Errorf("failed to delete corrupted database: %w", rmErr)
	}

	db, err = open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild database: %w", err)
	}
	return db, nil
}

// open connects, applies the connection pragmas and runs migrations.
// Corruption surfaces here as a wrapped driver error; New decides
// whether to wipe and retry.
func open(dbPath string) (*DB, error) {
	conn, err := sql.Open(sqlitedriver.DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows a single writer; more connections just queue on the
	// file lock.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}

	db := &DB{conn: conn}
	if err := db.ensureSchemaVersion(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Printf("Database ready at %s", dbPath)
	return db, nil
}

// isCorruptionError checks if an error indicates database corruption.
// Wrapped errors keep the driver text, so a substring match works at
// any depth.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "corrupt")
}

// removeStore deletes the database file along with its WAL and SHM sidecars.
func removeStore(dbPath string) error {
	log.Printf("Deleting database files at %s", dbPath)

	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete database file: %w", err)
	}

	for _, sidecar := range []string{dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to delete %s: %v", sidecar, err)
		}
	}

	return nil
}

// Close checkpoints the WAL and closes the connection. Safe on nil.
func Close(db *DB) error {
	if db == nil || db.conn == nil {
		return nil
	}

	log.Printf("Checkpointing WAL ahead of close")
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("Warning: WAL checkpoint failed: %v", err)
	}
	return db.conn.Close()
}

// HealthCheck reports whether the database still answers queries.
func HealthCheck(db *DB) error {
	if db == nil || db.conn == nil {
		return fmt.Errorf("database is not open")
	}

	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	return nil
}
