package deployment

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewUUIDMintsOnFirstRun(t *testing.T) {
	dataDir := t.TempDir()

	u, err := NewUUID(dataDir)
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	if !IsValidUUID(u.String()) {
		t.Errorf("minted value %q does not parse as a UUID", u.String())
	}

	wantPath := filepath.Join(dataDir, uuidFileName)
	if u.FilePath() != wantPath {
		t.Errorf("FilePath() = %q, want %q", u.FilePath(), wantPath)
	}

	// On-disk content is the value plus a trailing newline
	raw, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("reading identity file: %v", err)
	}
	if string(raw) != u.String()+"\n" {
		t.Errorf("file content %q, want %q", raw, u.String()+"\n")
	}
}

func TestNewUUIDIsStable(t *testing.T) {
	dataDir := t.TempDir()

	first, err := NewUUID(dataDir)
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := NewUUID(dataDir)
		if err != nil {
			t.Fatalf("reload %d: %v", i, err)
		}
		if again.String() != first.String() {
			t.Fatalf("reload %d returned %q, first run minted %q", i, again.String(), first.String())
		}
	}
}

func TestNewUUIDCreatesNestedDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "var", "lib", "ai-classifier")

	u, err := NewUUID(dataDir)
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	if _, err := os.Stat(u.FilePath()); err != nil {
		t.Errorf("identity file missing after mint: %v", err)
	}
}

func TestNewUUIDRefusesCorruptFile(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, uuidFileName)
	if err := os.WriteFile(path, []byte("not-a-valid-uuid"), 0644); err != nil {
		t.Fatal(err)
	}

	// A present but unparseable identity must not be re-minted
	if _, err := NewUUID(dataDir); err == nil {
		t.Error("NewUUID accepted a corrupt identity file")
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "not-a-valid-uuid" {
		t.Errorf("corrupt file was rewritten to %q", raw)
	}
}

func TestNewUUIDTrimsPadding(t *testing.T) {
	dataDir := t.TempDir()
	want := "550e8400-e29b-41d4-a716-446655440000"

	padded := "  " + want + "  \n"
	if err := os.WriteFile(filepath.Join(dataDir, uuidFileName), []byte(padded), 0644); err != nil {
		t.Fatal(err)
	}

	u, err := NewUUID(dataDir)
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	if u.String() != want {
		t.Errorf("String() = %q, want %q", u.String(), want)
	}
}

func TestReadStoredUUIDMissingFile(t *testing.T) {
	_, err := readStoredUUID(filepath.Join(t.TempDir(), uuidFileName))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist for a missing file, got %v", err)
	}
}

func TestIsValidUUID(t *testing.T) {
	valid := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"550E8400-E29B-41D4-A716-446655440000",
	}
	for _, s := range valid {
		if !IsValidUUID(s) {
			t.Errorf("IsValidUUID(%q) = false", s)
		}
	}

	invalid := []string{
		"",
		"not-a-uuid",
		"550e8400-e29b-41d4-a716",
		strings.Repeat("5", 40),
	}
	for _, s := range invalid {
		if IsValidUUID(s) {
			t.Errorf("IsValidUUID(%q) = true", s)
		}
	}
}

func TestGenerateUUID(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		id, err := generateUUID()
		if err != nil {
			t.Fatalf("generateUUID: %v", err)
		}
		if !IsValidUUID(id) {
			t.Fatalf("generated %q, which does not parse", id)
		}
		if seen[id] {
			t.Fatalf("generated %q twice", id)
		}
		seen[id] = true
	}
}
