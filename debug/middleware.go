package debug

import (
	"log"
	"net/http"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code and
// body size actually sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.size += n
	return n, err
}

// LoggingMiddleware logs every request and response and feeds the per-endpoint
// counters while debug mode is enabled. When disabled it passes straight
// through.
//
// A classify call logs as:
//
//	[DEBUG] Request: method=POST path=/api/classify remote=127.0.0.1:54321
//	[DEBUG] Response: method=POST path=/api/classify status=200 size=1234 duration=45.2ms
func LoggingMiddleware(debugConfig *DebugConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !debugConfig.IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		log.Printf("[DEBUG] Request: method=%s path=%s remote=%s", r.Method, r.URL.Path, r.RemoteAddr)

		// Status defaults to 200 for handlers that never call WriteHeader
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		log.Printf("[DEBUG] Response: method=%s path=%s status=%d size=%d duration=%v", r.Method, r.URL.Path, rec.status, rec.size, duration)

		debugConfig.RecordRequest(r.Method+" "+r.URL.Path, duration)
	})
}
