package metrics

import (
	"encoding/json"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultStalenessWindow is how long a series may go unreported before
// the tracker emits its stale marker.
const DefaultStalenessWindow = 60 * time.Minute

// TrackerStore is the interface for persisting metric staleness data.
// Implemented by database.DB via the metadata table.
type TrackerStore interface {
	GetMetadata(key string) (string, error)
	SetMetadata(key, value string) error
}

// MetricTracker remembers when each metric series was last reported.
// Status buckets drop out of the stats query once their count reaches
// zero; the tracker emits a NaN marker for such series so scrapers do
// not hold on to the last reported value. State is persisted so tracking
// survives restarts.
type MetricTracker struct {
	mu              sync.RWMutex
	lastSeen        map[string]time.Time // series key, see generateMetricKey
	stalenessWindow time.Duration
	store           TrackerStore
	storageKey      string // metadata row the state lives under
	lastPayload     string // last persisted payload, skips redundant writes
}

// MetricTrackerConfig configures a MetricTracker. Zero values fall back
// to DefaultStalenessWindow and the "metrics_staleness" metadata key; a
// nil Store disables persistence.
type MetricTrackerConfig struct {
	StalenessWindow time.Duration
	Store           TrackerStore
	StorageKey      string
}

// NewMetricTracker builds a tracker and, when a store is present,
// reloads the timestamps a previous run persisted.
func NewMetricTracker(cfg MetricTrackerConfig) *MetricTracker {
	mt := &MetricTracker{
		lastSeen:        make(map[string]time.Time),
		stalenessWindow: cfg.StalenessWindow,
		store:           cfg.Store,
		storageKey:      cfg.StorageKey,
	}
	if mt.stalenessWindow == 0 {
		mt.stalenessWindow = DefaultStalenessWindow
	}
	if mt.storageKey == "" {
		mt.storageKey = "metrics_staleness"
	}

	if mt.store != nil {
		if err := mt.restoreState(); err != nil {
			log.Printf("[metric-tracker] Warning: could not restore persisted state: %v", err)
		}
	}
	return mt
}

// restoreState reads the persisted key -> RFC3339 timestamp map. A bad
// payload leaves the tracker empty rather than failing construction.
func (mt *MetricTracker) restoreState() error {
	raw, err := mt.store.GetMetadata(mt.storageKey)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	var saved map[string]string
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	for key, stamp := range saved {
		seen, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			log.Printf("[metric-tracker] Warning: dropping key %s, bad timestamp: %v", key, err)
			continue
		}
		mt.lastSeen[key] = seen
	}

	log.Printf("[metric-tracker] Restored %d series timestamps", len(mt.lastSeen))
	return nil
}

// persistState writes the last-seen map to the store, skipping the write
// when nothing changed since the previous call.
func (mt *MetricTracker) persistState() error {
	if mt.store == nil {
		return nil
	}

	mt.mu.RLock()
	snapshot := make(map[string]string, len(mt.lastSeen))
	for key, seen := range mt.lastSeen {
		snapshot[key] = seen.Format(time.RFC3339)
	}
	mt.mu.RUnlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if string(payload) == mt.lastPayload {
		return nil
	}
	if err := mt.store.SetMetadata(mt.storageKey, string(payload)); err != nil {
		return err
	}

	mt.lastPayload = string(payload)
	return nil
}

// generateMetricKey builds the tracking key for one series. Labels are
// sorted so the same series always maps to the same key.
func generateMetricKey(familyName string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(familyName)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// parseMetricKey splits a tracking key back into family name and
// labels, undoing generateMetricKey. Malformed label pairs are dropped.
func parseMetricKey(key string) (string, map[string]string) {
	familyName, rest, _ := strings.Cut(key, "|")

	labels := make(map[string]string)
	for rest != "" {
		var pair string
		pair, rest, _ = strings.Cut(rest, "|")
		if k, v, ok := strings.Cut(pair, "="); ok && k != "" {
			labels[k] = v
		}
	}

	return familyName, labels
}

// ProcessMetrics records the series present in this collection and appends
// NaN markers for series that disappeared longer than the staleness window
// ago. Series missing for less than the window are kept quiet.
func (mt *MetricTracker) ProcessMetrics(data *MetricsData) *MetricsData {
	if data == nil {
		return nil
	}

	now := time.Now()
	current := make(map[string]struct{})
	for _, family := range data.Families {
		for _, metric := range family.Metrics {
			current[generateMetricKey(family.Name, metric.Labels)] = struct{}{}
		}
	}

	stale := mt.advance(current, now)

	if err := mt.persistState(); err != nil {
		log.Printf("[metric-tracker] Warning: persist failed: %v", err)
	}

	if len(stale) > 0 {
		data = mt.appendStaleMarkers(data, stale)
		log.Printf("[metric-tracker] Emitting stale markers for %d series", len(stale))
	}

	return data
}

// advance stamps the live series with now and returns the keys whose last
// sighting fell outside the staleness window. Expired keys leave the
// tracking map: the marker is emitted exactly once.
func (mt *MetricTracker) advance(current map[string]struct{}, now time.Time) map[string]time.Time {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	for key := range current {
		mt.lastSeen[key] = now
	}

	cutoff := now.Add(-mt.stalenessWindow)
	stale := make(map[string]time.Time)
	for key, seen := range mt.lastSeen {
		if _, live := current[key]; live {
			continue
		}
		if seen.Before(cutoff) {
			stale[key] = seen
			delete(mt.lastSeen, key)
		}
	}

	return stale
}

// appendStaleMarkers adds a NaN point for every stale series, re-creating
// the family when the whole family is absent from this collection.
func (mt *MetricTracker) appendStaleMarkers(data *MetricsData, stale map[string]time.Time) *MetricsData {
	familyIndex := make(map[string]int, len(data.Families))
	for i := range data.Families {
		familyIndex[data.Families[i].Name] = i
	}

	for key := range stale {
		familyName, labels := parseMetricKey(key)
		if familyName == "" {
			continue
		}

		i, ok := familyIndex[familyName]
		if !ok {
			data.Families = append(data.Families, MetricFamily{
				Name: familyName,
				Help: "Stale metric",
				Type: "gauge",
			})
			i = len(data.Families) - 1
			familyIndex[familyName] = i
		}

		data.Families[i].Metrics = append(data.Families[i].Metrics, MetricPoint{
			Labels: labels,
			Value:  math.NaN(),
		})
	}

	return data
}

// GetStalenessWindow reports the window after which an unseen series is
// marked stale.
func (mt *MetricTracker) GetStalenessWindow() time.Duration {
	return mt.stalenessWindow
}

// GetTrackedCount reports how many series the tracker is following.
func (mt *MetricTracker) GetTrackedCount() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.lastSeen)
}
