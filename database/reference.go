package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Phat0101/AI-classifier/tariff"
)

// Metadata keys for the tariff reference sync state.
const (
	metaReferenceChecksum  = "reference_checksum"
	metaReferenceSyncedAt  = "reference_synced_at"
	metaReferenceLineCount = "reference_line_count"
)

// ReferenceStatus describes the local tariff reference copy.
type ReferenceStatus struct {
	LineCount    int        `json:"line_count"`
	ChapterCount int        `json:"chapter_count"`
	Checksum     string     `json:"checksum,omitempty"`
	LastSynced   *time.Time `json:"last_synced,omitempty"`
}

// ReplaceTariffLines swaps the local tariff schedule for a freshly synced
// one. The whole swap is one transaction, so readers never observe a
// partially replaced schedule.
func (db *DB) ReplaceTariffLines(lines []tariff.Line, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM tariff_lines`); err != nil {
		return fmt.Errorf("failed to clear tariff lines: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO tariff_lines
			(code, stat_code, description, unit_of_qty, general_rate, tariff_orders)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, line := range lines {
		tariffOrders := 0
		if line.TariffOrders {
			tariffOrders = 1
		}
		_, err := stmt.Exec(line.Code, line.StatCode, line.Description,
			line.UnitOfQty, line.GeneralRate, tariffOrders)
		if err != nil {
			return fmt.Errorf("failed to insert tariff line %s/%s: %w", line.Code, line.StatCode, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		metaReferenceChecksum:  checksum,
		metaReferenceSyncedAt:  now,
		metaReferenceLineCount: fmt.Sprintf("%d", len(lines)),
	} {
		_, err := tx.Exec(`
			INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to store metadata %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ReplaceChapterNotes swaps the stored chapter notes.
func (db *DB) ReplaceChapterNotes(notes []tariff.Chapter) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chapter_notes`); err != nil {
		return fmt.Errorf("failed to clear chapter notes: %w", err)
	}

	for _, note := range notes {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO chapter_notes (code, title, notes) VALUES (?, ?, ?)
		`, note.Code, note.Title, note.Notes)
		if err != nil {
			return fmt.Errorf("failed to insert chapter note %s: %w", note.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTariffLines returns the full local tariff schedule in code order.
func (db *DB) GetTariffLines() ([]tariff.Line, error) {
	rows, err := db.conn.Query(`
		SELECT code, stat_code, description, unit_of_qty, general_rate, tariff_orders
		FROM tariff_lines
		ORDER BY code, stat_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariff lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []tariff.Line
	for rows.Next() {
		var line tariff.Line
		var unitOfQty, generalRate sql.NullString
		var tariffOrders int

		err := rows.Scan(&line.Code, &line.StatCode, &line.Description,
			&unitOfQty, &generalRate, &tariffOrders)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff line: %w", err)
		}

		line.UnitOfQty = unitOfQty.String
		line.GeneralRate = generalRate.String
		line.TariffOrders = tariffOrders != 0
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// GetChapterNote returns the notes for a chapter code, or nil if absent.
func (db *DB) GetChapterNote(code string) (*tariff.Chapter, error) {
	var chapter tariff.Chapter
	var title, notes sql.NullString

	err := db.conn.QueryRow(`
		SELECT code, title, notes FROM chapter_notes WHERE code = ?
	`, code).Scan(&chapter.Code, &title, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chapter note: %w", err)
	}

	chapter.Title = title.String
	chapter.Notes = notes.String
	return &chapter, nil
}

// GetReferenceStatus reports the state of the local tariff reference.
func (db *DB) GetReferenceStatus() (*ReferenceStatus, error) {
	status := &ReferenceStatus{}

	err := db.conn.QueryRow(`SELECT COUNT(*) FROM tariff_lines`).Scan(&status.LineCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count tariff lines: %w", err)
	}

	err = db.conn.QueryRow(`SELECT COUNT(*) FROM chapter_notes`).Scan(&status.ChapterCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count chapter notes: %w", err)
	}

	if checksum, err := db.GetMetadata(metaReferenceChecksum); err == nil && checksum != "" {
		status.Checksum = checksum
	}

	if syncedAt, err := db.GetMetadata(metaReferenceSyncedAt); err == nil && syncedAt != "" {
		if ts, parseErr := time.Parse(time.RFC3339, syncedAt); parseErr == nil {
			status.LastSynced = &ts
		}
	}

	return status, nil
}

// GetMetadata returns a metadata value, or empty string if the key is
// not set.
func (db *DB) GetMetadata(key string) (string, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores a metadata value.
func (db *DB) SetMetadata(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}
