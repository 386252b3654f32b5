// Package metrics provides Prometheus metrics exposition for the classifier.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/Phat0101/AI-classifier/database"
)

// InfoProvider provides deployment information for metric labels
type InfoProvider interface {
	GetDeploymentName() string // hostname of the serving process
	GetVersion() string
	GetDeploymentIP() string // primary outbound IP, empty if unknown
}

// DatabaseProvider provides access to classification and reference statistics
type DatabaseProvider interface {
	GetClassificationStats() (*database.ClassificationStats, error)
	GetReferenceStatus() (*database.ReferenceStatus, error)
}

// QueueProvider reports the classification queue depth
type QueueProvider interface {
	Depth() int
}

// CollectorConfig switches individual metric families on and off.
type CollectorConfig struct {
	DeploymentEnabled     bool
	ResultsEnabled        bool
	RequestsEnabled       bool
	ReferenceLinesEnabled bool
	QueueDepthEnabled     bool
}

// Collector assembles the classifier's gauge families from the database
// and the async queue.
type Collector struct {
	infoProvider   InfoProvider
	deploymentUUID string
	deploymentName string // read once at construction
	database       DatabaseProvider
	queue          QueueProvider
	config         CollectorConfig
	tracker        *MetricTracker // nil until SetTracker
}

// NewCollector wires a collector to its providers. The deployment name
// is captured up front so every family in one snapshot carries the same
// value.
func NewCollector(infoProvider InfoProvider, deploymentUUID string, database DatabaseProvider, queue QueueProvider, config CollectorConfig) *Collector {
	c := &Collector{
		infoProvider:   infoProvider,
		deploymentUUID: deploymentUUID,
		database:       database,
		queue:          queue,
		config:         config,
	}
	if infoProvider != nil {
		c.deploymentName = infoProvider.GetDeploymentName()
	}
	return c
}

// SetTracker attaches staleness tracking. Once set, Collect routes every
// snapshot through the tracker.
func (c *Collector) SetTracker(tracker *MetricTracker) {
	c.tracker = tracker
}

// Collect builds a fresh snapshot of every enabled metric family.
func (c *Collector) Collect() (*MetricsData, error) {
	data := &MetricsData{
		Families: make([]MetricFamily, 0),
	}

	// Fetch reference status once; it feeds both the deployment labels
	// and the reference line count
	var refStatus *database.ReferenceStatus
	if c.database != nil && (c.config.DeploymentEnabled || c.config.ReferenceLinesEnabled) {
		var err error
		refStatus, err = c.database.GetReferenceStatus()
		if err != nil {
			return nil, fmt.Errorf("failed to get reference status: %w", err)
		}
	}

	if c.config.DeploymentEnabled {
		data.Families = append(data.Families, c.deploymentFamily(refStatus))
	}

	// Fetch classification stats once for both result and request families
	var stats *database.ClassificationStats
	if c.database != nil && (c.config.ResultsEnabled || c.config.RequestsEnabled) {
		var err error
		stats, err = c.database.GetClassificationStats()
		if err != nil {
			return nil, fmt.Errorf("failed to get classification stats: %w", err)
		}
	}

	if c.config.ResultsEnabled && stats != nil {
		data.Families = append(data.Families, c.resultsFamily(stats))
	}

	if c.config.RequestsEnabled && stats != nil {
		data.Families = append(data.Families, c.singlePointFamily(
			"ai_classifier_requests_total",
			"Classification requests currently stored",
			float64(stats.TotalRequests)))
	}

	if c.config.ReferenceLinesEnabled && refStatus != nil {
		data.Families = append(data.Families, c.singlePointFamily(
			"ai_classifier_reference_lines",
			"Tariff schedule lines loaded in the local reference",
			float64(refStatus.LineCount)))
	}

	if c.config.QueueDepthEnabled && c.queue != nil {
		data.Families = append(data.Families, c.singlePointFamily(
			"ai_classifier_queue_depth",
			"Classification requests waiting in the async queue",
			float64(c.queue.Depth())))
	}

	// Stale markers go in last so they cover this snapshot
	if c.tracker != nil {
		data = c.tracker.ProcessMetrics(data)
	}

	return data, nil
}

// deploymentLabels returns the label pair every family carries.
func (c *Collector) deploymentLabels() map[string]string {
	return map[string]string{
		"deployment_uuid": c.deploymentUUID,
		"deployment_name": c.deploymentName,
	}
}

// singlePointFamily builds a gauge family with one point carrying the
// standard deployment labels.
func (c *Collector) singlePointFamily(name, help string, value float64) MetricFamily {
	return MetricFamily{
		Name: name,
		Help: help,
		Type: "gauge",
		Metrics: []MetricPoint{{
			Labels: c.deploymentLabels(),
			Value:  value,
		}},
	}
}

// deploymentFamily carries the identity labels: uuid, name, version,
// outbound IP and the last reference sync time.
func (c *Collector) deploymentFamily(refStatus *database.ReferenceStatus) MetricFamily {
	labels := c.deploymentLabels()
	labels["ai_classifier_version"] = c.infoProvider.GetVersion()

	// deployment_ip is omitted when the outbound probe found nothing
	if ip := c.infoProvider.GetDeploymentIP(); ip != "" {
		labels["deployment_ip"] = ip
	}

	// reference_synced_at appears once the first sync has completed
	if refStatus != nil && refStatus.LastSynced != nil {
		labels["reference_synced_at"] = refStatus.LastSynced.Format(time.RFC3339)
	}

	return MetricFamily{
		Name: "ai_classifier_deployment",
		Help: "AI classifier deployment information",
		Type: "gauge",
		Metrics: []MetricPoint{{
			Labels: labels,
			Value:  1,
		}},
	}
}

// resultsFamily emits one point per item status, sorted so the output
// order is stable between scrapes.
func (c *Collector) resultsFamily(stats *database.ClassificationStats) MetricFamily {
	statuses := make([]string, 0, len(stats.ItemsByStatus))
	for status := range stats.ItemsByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	points := make([]MetricPoint, 0, len(statuses))
	for _, status := range statuses {
		labels := c.deploymentLabels()
		labels["status"] = status
		points = append(points, MetricPoint{
			Labels: labels,
			Value:  float64(stats.ItemsByStatus[status]),
		})
	}

	return MetricFamily{
		Name:    "ai_classifier_results",
		Help:    "Stored classification results by status",
		Type:    "gauge",
		Metrics: points,
	}
}
