package metrics

// MetricPoint is one labelled sample within a family
type MetricPoint struct {
	Labels map[string]string
	Value  float64
}

// MetricFamily groups the points sharing a metric name, like the
// per-status ai_classifier_results series
type MetricFamily struct {
	Name    string // e.g. "ai_classifier_results"
	Help    string
	Type    string // exposition type; everything emitted today is a gauge
	Metrics []MetricPoint
}

// MetricsData is the output of one collection pass, in emission order
type MetricsData struct {
	Families []MetricFamily
}
