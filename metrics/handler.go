package metrics

import (
	"io"
	"log"
	"net/http"
)

// Handler serves the collector output in Prometheus text format.
func Handler(collector *Collector) http.HandlerFunc {
	return collector.servePrometheus
}

// servePrometheus renders the current metric families in the Prometheus
// text exposition format. Only GET is accepted.
func (c *Collector) servePrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := c.Collect()
	if err != nil {
		log.Printf("Error collecting metrics: %v", err)
		http.Error(w, "Failed to collect metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, FormatPrometheus(data)); err != nil {
		log.Printf("Error writing metrics response: %v", err)
	}
}

// RegisterMetricsHandler mounts the scrape endpoint at /metrics.
func RegisterMetricsHandler(mux *http.ServeMux, collector *Collector) {
	mux.HandleFunc("/metrics", Handler(collector))
	log.Println("Metrics handler registered at /metrics")
}
