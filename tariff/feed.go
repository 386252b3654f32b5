package tariff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// CacheFilename is the name of the sync state file.
	CacheFilename = "tariff_feed_cache.json"

	// firstChapter and lastChapter bound the chapter walk. Chapters the
	// upstream has not published (reserved chapters) come back empty and
	// are skipped.
	firstChapter = 1
	lastChapter  = 97

	// syncConcurrency caps parallel chapter fetches. The client's rate
	// limiter is the real throttle; this just bounds in-flight requests.
	syncConcurrency = 4
)

// ReferenceStore persists a synced tariff schedule.
type ReferenceStore interface {
	ReplaceTariffLines(lines []Line, checksum string) error
	ReplaceChapterNotes(notes []Chapter) error
}

// CachedFeedState is the on-disk record of the last successful sync.
type CachedFeedState struct {
	LastSynced time.Time `json:"last_synced"`
	Checksum   string    `json:"checksum"`
	LineCount  int       `json:"line_count"`
}

// Syncer walks the full tariff schedule chapter by chapter and replaces
// the local reference copy when the upstream data changes.
type Syncer struct {
	client    *Client
	store     ReferenceStore
	cacheFile string
	mu        sync.Mutex
}

// NewSyncer creates a syncer writing its state file into cacheDir.
func NewSyncer(client *Client, store ReferenceStore, cacheDir string) (*Syncer, error) {
	if cacheDir == "" {
		return nil, fmt.Errorf("cacheDir cannot be empty")
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Syncer{
		client:    client,
		store:     store,
		cacheFile: filepath.Join(cacheDir, CacheFilename),
	}, nil
}

// Sync fetches all chapters, persists the schedule and reports whether
// the data changed since the previous sync. The first sync persists and
// returns false: there is nothing classified yet to revisit.
//
// The local copy is only replaced after the full walk succeeds, so a
// failure partway leaves the previous reference intact.
func (s *Syncer) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	lines, notes, err := s.fetchSchedule(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fetch tariff schedule: %w", err)
	}

	// An empty schedule means the upstream is misbehaving, not that the
	// tariff was repealed. Never wipe the local copy over it.
	if len(lines) == 0 {
		return false, fmt.Errorf("upstream returned no tariff lines, keeping local reference")
	}

	checksum := scheduleChecksum(lines)
	log.Printf("[tariff-sync] Fetched %d tariff lines, %d chapter notes in %v (checksum %s)",
		len(lines), len(notes), time.Since(start).Round(time.Millisecond), truncateChecksum(checksum))

	firstRun := false
	hasChanged := false
	cached, err := s.loadCache()
	if err != nil {
		if os.IsNotExist(err) {
			firstRun = true
		} else {
			return false, fmt.Errorf("failed to load sync state: %w", err)
		}
	} else {
		hasChanged = cached.Checksum != "" && cached.Checksum != checksum
	}

	if err := s.store.ReplaceTariffLines(lines, checksum); err != nil {
		return false, fmt.Errorf("failed to store tariff lines: %w", err)
	}
	if err := s.store.ReplaceChapterNotes(notes); err != nil {
		return false, fmt.Errorf("failed to store chapter notes: %w", err)
	}

	if err := s.saveCache(CachedFeedState{
		LastSynced: time.Now().UTC(),
		Checksum:   checksum,
		LineCount:  len(lines),
	}); err != nil {
		return hasChanged, fmt.Errorf("failed to save sync state: %w", err)
	}

	switch {
	case firstRun:
		log.Println("[tariff-sync] First sync completed, reference populated")
	case hasChanged:
		log.Printf("[tariff-sync] Tariff schedule changed: %s -> %s",
			truncateChecksum(cached.Checksum), truncateChecksum(checksum))
	default:
		log.Println("[tariff-sync] No tariff schedule changes detected")
	}

	return hasChanged, nil
}

// fetchSchedule walks chapters 01..97 in parallel and returns all lines
// in a deterministic order.
func (s *Syncer) fetchSchedule(ctx context.Context) ([]Line, []Chapter, error) {
	chapterLines := make([][]Line, lastChapter+1)
	chapterNotes := make([]*Chapter, lastChapter+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)

	for n := firstChapter; n <= lastChapter; n++ {
		g.Go(func() error {
			code := fmt.Sprintf("%02d", n)

			lines, err := s.client.Search(gctx, code)
			if err != nil {
				return fmt.Errorf("chapter %s: %w", code, err)
			}
			chapterLines[n] = lines

			if len(lines) == 0 {
				// Reserved or unpublished chapter, skip the notes call.
				return nil
			}

			notes, err := s.client.ChapterNotes(gctx, code)
			if err != nil {
				return fmt.Errorf("chapter %s notes: %w", code, err)
			}
			chapterNotes[n] = notes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var lines []Line
	var notes []Chapter
	for n := firstChapter; n <= lastChapter; n++ {
		lines = append(lines, chapterLines[n]...)
		if chapterNotes[n] != nil {
			notes = append(notes, *chapterNotes[n])
		}
	}
	return lines, notes, nil
}

// scheduleChecksum hashes the classification-relevant fields of the
// schedule. Lines are hashed in sorted order so upstream reordering does
// not register as a change.
func scheduleChecksum(lines []Line) string {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Code != sorted[j].Code {
			return sorted[i].Code < sorted[j].Code
		}
		return sorted[i].StatCode < sorted[j].StatCode
	})

	h := sha256.New()
	for _, line := range sorted {
		fmt.Fprintf(h, "%s|%s|%s|%t\n", line.Code, line.StatCode, line.Description, line.TariffOrders)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// loadCache reads the sync state from disk.
func (s *Syncer) loadCache() (*CachedFeedState, error) {
	data, err := os.ReadFile(s.cacheFile)
	if err != nil {
		return nil, err
	}

	var cached CachedFeedState
	if err := json.Unmarshal(data, &cached); err != nil {
		// Treat corrupted state as first run - delete and recreate
		log.Printf("[tariff-sync] Warning: corrupted sync state, recreating: %v", err)
		if removeErr := os.Remove(s.cacheFile); removeErr != nil {
			log.Printf("[tariff-sync] Warning: failed to remove corrupted sync state: %v", removeErr)
		}
		return nil, os.ErrNotExist
	}

	return &cached, nil
}

// saveCache writes the sync state to disk atomically.
func (s *Syncer) saveCache(state CachedFeedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write-then-rename keeps a crash from leaving a torn state file
	tempFile := s.cacheFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.cacheFile); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// truncateChecksum shortens a checksum to a log-friendly prefix.
func truncateChecksum(checksum string) string {
	if len(checksum) > 20 {
		return checksum[:20] + "..."
	}
	return checksum
}
