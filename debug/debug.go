// Package debug provides debug mode functionality including request
// metrics collection, a read-only SQL console, and verbose logging.
package debug

import (
	"sync"
	"time"
)

// DebugConfig gates the debug surface and accumulates request statistics
// while enabled. QueueDepth is refreshed by the stats handler on each read
// rather than sampled continuously.
type DebugConfig struct {
	enabled bool // fixed at construction

	mu    sync.RWMutex
	stats Metrics
}

// Metrics is the accumulated request activity since startup or the last
// reset.
type Metrics struct {
	RequestCount    int64
	TotalDuration   time.Duration
	QueueDepth      int
	LastUpdated     time.Time
	EndpointMetrics map[string]*EndpointMetrics
}

// EndpointMetrics holds per-endpoint statistics. Endpoints are keyed by
// method and path ("POST /api/classify") since several routes serve
// both reads and writes.
type EndpointMetrics struct {
	Count         int64
	TotalDuration time.Duration
	LastAccess    time.Time
}

// NewDebugConfig returns a config in the given mode. The mode cannot be
// flipped later; restart the service to change it.
func NewDebugConfig(enabled bool) *DebugConfig {
	return &DebugConfig{
		enabled: enabled,
		stats:   Metrics{EndpointMetrics: make(map[string]*EndpointMetrics)},
	}
}

// IsEnabled reports whether debug mode is on.
func (d *DebugConfig) IsEnabled() bool {
	return d.enabled
}

// RecordRequest records a completed request under the given endpoint key.
// No-op unless debug mode is enabled. Thread-safe.
func (d *DebugConfig) RecordRequest(endpoint string, duration time.Duration) {
	if !d.enabled {
		return
	}

	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.RequestCount++
	d.stats.TotalDuration += duration
	d.stats.LastUpdated = now

	em := d.stats.EndpointMetrics[endpoint]
	if em == nil {
		em = &EndpointMetrics{}
		d.stats.EndpointMetrics[endpoint] = em
	}
	em.Count++
	em.TotalDuration += duration
	em.LastAccess = now
}

// SetQueueDepth updates the classification queue depth metric.
// No-op unless debug mode is enabled. Thread-safe.
func (d *DebugConfig) SetQueueDepth(depth int) {
	if !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.QueueDepth = depth
}

// GetMetrics returns a deep copy of the current metrics, safe to read
// while requests keep recording.
func (d *DebugConfig) GetMetrics() *Metrics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := d.stats
	snapshot.EndpointMetrics = make(map[string]*EndpointMetrics, len(d.stats.EndpointMetrics))
	for endpoint, em := range d.stats.EndpointMetrics {
		c := *em
		snapshot.EndpointMetrics[endpoint] = &c
	}
	return &snapshot
}

// ResetMetrics drops everything accumulated so far.
func (d *DebugConfig) ResetMetrics() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Metrics{EndpointMetrics: make(map[string]*EndpointMetrics)}
}
