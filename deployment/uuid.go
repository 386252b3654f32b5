// Package deployment identifies a classifier installation. Each deployment
// gets a persistent UUID that survives restarts and upgrades; the metrics
// exporter attaches it to the deployment info gauge so multiple installations
// reporting to the same collector stay distinguishable.
package deployment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// uuidFileName lives in the data directory next to the database so the
// identity travels with the state it describes.
const uuidFileName = "deployment-uuid.txt"

// UUID is the persistent identity of one deployment.
type UUID struct {
	value    string
	filePath string
}

// NewUUID returns the deployment UUID stored under dataDir, minting and
// persisting a fresh one on first run. A present but unparseable file is an
// error, never a silent re-mint.
func NewUUID(dataDir string) (*UUID, error) {
	path := filepath.Join(dataDir, uuidFileName)

	value, err := readStoredUUID(path)
	switch {
	case err == nil:
		return &UUID{value: value, filePath: path}, nil
	case errors.Is(err, os.ErrNotExist):
		value, err = mintUUID(dataDir, path)
		if err != nil {
			return nil, err
		}
		return &UUID{value: value, filePath: path}, nil
	default:
		return nil, err
	}
}

// readStoredUUID loads and validates the identity file. Returns
// os.ErrNotExist (wrapped) when no file is present.
func readStoredUUID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to read UUID file %s: %w", path, err)
	}

	value := strings.TrimSpace(string(data))
	if _, err := uuid.Parse(value); err != nil {
		return "", fmt.Errorf("invalid UUID in %s: %w", path, err)
	}
	return value, nil
}

// mintUUID generates a new identity and persists it before returning it.
func mintUUID(dataDir, path string) (string, error) {
	value, err := generateUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dataDir, err)
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write UUID to %s: %w", path, err)
	}
	return value, nil
}

// String returns the UUID value.
func (u *UUID) String() string {
	return u.value
}

// FilePath returns where the UUID is persisted.
func (u *UUID) FilePath() string {
	return u.filePath
}

func generateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsValidUUID reports whether s parses as a UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
