package tariff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakeStore records what the syncer persists.
type fakeStore struct {
	mu           sync.Mutex
	lines        []Line
	notes        []Chapter
	checksum     string
	replaceCalls int
}

func (f *fakeStore) ReplaceTariffLines(lines []Line, checksum string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = lines
	f.checksum = checksum
	f.replaceCalls++
	return nil
}

func (f *fakeStore) ReplaceChapterNotes(notes []Chapter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = notes
	return nil
}

// newScheduleServer serves two populated chapters (01 and 84); all other
// chapters return empty lists. The returned map can be mutated between
// syncs to simulate upstream changes.
func newScheduleServer(t *testing.T) (*httptest.Server, map[string][]Line) {
	t.Helper()

	data := map[string][]Line{
		"01": {
			{ID: 1, Code: "0101.21.00", StatCode: "10", Description: "Purebred breeding horses"},
		},
		"84": {
			{ID: 2, Code: "8407.21.00", StatCode: "11", Description: "Outboard motors", TariffOrders: true},
			{ID: 3, Code: "8408.10.00", StatCode: "12", Description: "Marine propulsion engines"},
		},
	}

	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/tariffs/chapter_flatten_tariffs", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lines, found := data[r.URL.Query().Get("code")]
		mu.Unlock()
		if !found {
			lines = []Line{}
		}
		if err := json.NewEncoder(w).Encode(lines); err != nil {
			t.Fatalf("Failed to encode lines: %v", err)
		}
	})
	mux.HandleFunc("/chapters/by_code", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		chapter := Chapter{Code: code, Title: "Chapter " + code, Notes: "Notes for chapter " + code}
		if err := json.NewEncoder(w).Encode(chapter); err != nil {
			t.Fatalf("Failed to encode chapter: %v", err)
		}
	})

	return httptest.NewServer(mux), data
}

func newTestSyncer(t *testing.T, serverURL string, store ReferenceStore) *Syncer {
	t.Helper()

	syncer, err := NewSyncer(newTestClient(serverURL), store, t.TempDir())
	if err != nil {
		t.Fatalf("NewSyncer failed: %v", err)
	}
	return syncer
}

// Test first sync populates the store without signalling a change
func TestSyncer_FirstRun(t *testing.T) {
	server, _ := newScheduleServer(t)
	defer server.Close()

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	changed, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if changed {
		t.Error("Expected changed=false on first sync")
	}

	if len(store.lines) != 3 {
		t.Errorf("Expected 3 stored lines, got %d", len(store.lines))
	}

	// Lines arrive in chapter order.
	if store.lines[0].Code != "0101.21.00" {
		t.Errorf("Expected chapter 01 lines first, got %s", store.lines[0].Code)
	}

	if len(store.notes) != 2 {
		t.Errorf("Expected notes for 2 chapters, got %d", len(store.notes))
	}

	if store.checksum == "" {
		t.Error("Expected checksum passed to store")
	}

	// Sync state written to disk.
	if _, err := os.Stat(syncer.cacheFile); os.IsNotExist(err) {
		t.Error("Sync state file was not created")
	}
}

// Test unchanged upstream data does not signal a change
func TestSyncer_NoChange(t *testing.T) {
	server, _ := newScheduleServer(t)
	defer server.Close()

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	if _, err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	changed, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	if changed {
		t.Error("Expected changed=false when upstream data is identical")
	}

	// The store is refreshed on every successful sync.
	if store.replaceCalls != 2 {
		t.Errorf("Expected 2 store replacements, got %d", store.replaceCalls)
	}
}

// Test modified upstream data signals a change
func TestSyncer_ChangeDetected(t *testing.T) {
	server, data := newScheduleServer(t)
	defer server.Close()

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	if _, err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	data["84"] = append(data["84"], Line{ID: 4, Code: "8409.91.00", StatCode: "13", Description: "Engine parts"})

	changed, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	if !changed {
		t.Error("Expected changed=true after upstream data changed")
	}

	if len(store.lines) != 4 {
		t.Errorf("Expected 4 stored lines after change, got %d", len(store.lines))
	}
}

// Test an empty upstream never wipes the local reference
func TestSyncer_EmptyUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	if _, err := syncer.Sync(context.Background()); err == nil {
		t.Error("Expected error when upstream returns no tariff lines")
	}

	if store.replaceCalls != 0 {
		t.Error("Store should not be touched when upstream is empty")
	}
}

// Test transport failure aborts the sync before storing anything
func TestSyncer_UpstreamUnreachable(t *testing.T) {
	server, _ := newScheduleServer(t)
	server.Close() // Connection refused from here on

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	if _, err := syncer.Sync(context.Background()); err == nil {
		t.Error("Expected error for unreachable upstream")
	}

	if store.replaceCalls != 0 {
		t.Error("Store should not be touched on transport failure")
	}
}

// Test corrupted sync state is treated as a first run
func TestSyncer_CorruptedState(t *testing.T) {
	server, _ := newScheduleServer(t)
	defer server.Close()

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	if err := os.WriteFile(syncer.cacheFile, []byte("not valid json{{{"), 0644); err != nil {
		t.Fatalf("Failed to write corrupted state: %v", err)
	}

	changed, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if changed {
		t.Error("Expected changed=false for corrupted state (treated as first run)")
	}

	// State recreated with valid JSON.
	cached, err := syncer.loadCache()
	if err != nil {
		t.Fatalf("Failed to load recreated state: %v", err)
	}
	if cached.LineCount != 3 {
		t.Errorf("Expected recorded line count 3, got %d", cached.LineCount)
	}
}

// Test cancelled context aborts the sync
func TestSyncer_ContextCancellation(t *testing.T) {
	server, _ := newScheduleServer(t)
	defer server.Close()

	store := &fakeStore{}
	syncer := newTestSyncer(t, server.URL, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	if _, err := syncer.Sync(ctx); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

// Test checksum ignores upstream ordering but not content
func TestScheduleChecksum(t *testing.T) {
	a := []Line{
		{Code: "0101.21.00", StatCode: "10", Description: "Purebred breeding horses"},
		{Code: "8407.21.00", StatCode: "11", Description: "Outboard motors", TariffOrders: true},
	}
	b := []Line{a[1], a[0]}

	if scheduleChecksum(a) != scheduleChecksum(b) {
		t.Error("Expected checksum to be order independent")
	}

	c := []Line{a[0], {Code: "8407.21.00", StatCode: "11", Description: "Outboard motors", TariffOrders: false}}
	if scheduleChecksum(a) == scheduleChecksum(c) {
		t.Error("Expected checksum to change when tariff orders flag changes")
	}
}

// Test NewSyncer validates and creates the cache directory
func TestNewSyncer_CacheDir(t *testing.T) {
	if _, err := NewSyncer(nil, nil, ""); err == nil {
		t.Error("Expected error for empty cacheDir")
	}

	tmpDir := t.TempDir()
	cacheDir := filepath.Join(tmpDir, "nonexistent", "cache")

	syncer, err := NewSyncer(nil, nil, cacheDir)
	if err != nil {
		t.Fatalf("NewSyncer failed: %v", err)
	}

	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Error("Cache directory should be created")
	}

	expected := filepath.Join(cacheDir, CacheFilename)
	if syncer.cacheFile != expected {
		t.Errorf("Expected cache file %s, got %s", expected, syncer.cacheFile)
	}
}
