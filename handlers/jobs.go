package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Phat0101/AI-classifier/database"
	"github.com/Phat0101/AI-classifier/scheduler"
)

// HistoryStore is the slice of the database layer the history endpoint
// reads from. *database.DB satisfies it.
type HistoryStore interface {
	GetJobExecutions(jobName string, limit int) ([]database.JobExecution, error)
}

// jobSummary is one row of the jobs listing.
type jobSummary struct {
	Name    string `json:"name"`
	NextRun string `json:"next_run,omitempty"`
}

type jobListResponse struct {
	Jobs []jobSummary `json:"jobs"`
}

// ListJobsHandler serves GET /api/debug/jobs: every registered job with
// its next scheduled run.
func ListJobsHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if sched == nil {
			http.Error(w, "Scheduler not initialized", http.StatusServiceUnavailable)
			return
		}

		names := sched.GetJobs()
		sort.Strings(names)

		jobs := make([]jobSummary, 0, len(names))
		for _, name := range names {
			row := jobSummary{Name: name}
			if nextRun, err := sched.GetNextRun(name); err == nil && !nextRun.IsZero() {
				row.NextRun = nextRun.Format(time.RFC3339)
			}
			jobs = append(jobs, row)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(jobListResponse{Jobs: jobs}); err != nil {
			log.Printf("Error encoding jobs response: %v", err)
		}
	}
}

// triggerJobName extracts {name} from /api/debug/jobs/{name}/trigger.
// Returns "" when the path carries no name between prefix and suffix.
func triggerJobName(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/debug/jobs/")
	if !ok {
		return ""
	}
	name, ok := strings.CutSuffix(rest, "/trigger")
	if !ok {
		return ""
	}
	return name
}

type triggerResponse struct {
	Status  string `json:"status"`
	Job     string `json:"job"`
	Message string `json:"message"`
}

// TriggerJobHandler serves POST /api/debug/jobs/{name}/trigger, kicking
// off the named job outside its schedule.
func TriggerJobHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if sched == nil {
			http.Error(w, "Scheduler not initialized", http.StatusServiceUnavailable)
			return
		}

		jobName := triggerJobName(r.URL.Path)
		if jobName == "" {
			http.Error(w, "Job name required", http.StatusBadRequest)
			return
		}

		log.Printf("[jobs-api] Manual trigger for %s", jobName)
		if err := sched.RunJobNow(jobName); err != nil {
			log.Printf("[jobs-api] Trigger for %s refused: %v", jobName, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(triggerResponse{
			Status:  "triggered",
			Job:     jobName,
			Message: "Job has been queued for immediate execution",
		}); err != nil {
			log.Printf("Error encoding trigger response: %v", err)
		}
	}
}

type jobHistoryResponse struct {
	Executions []database.JobExecution `json:"executions"`
	Count      int                     `json:"count"`
}

// JobHistoryHandler serves GET /api/debug/jobs/history. The query string
// may carry a job name filter and a result limit, which defaults to 100.
func JobHistoryHandler(store HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if store == nil {
			http.Error(w, "Database not initialized", http.StatusServiceUnavailable)
			return
		}

		jobName := r.URL.Query().Get("job")

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		executions, err := store.GetJobExecutions(jobName, limit)
		if err != nil {
			log.Printf("[jobs-api] Failed to get job executions: %v", err)
			http.Error(w, "Failed to get job executions", http.StatusInternalServerError)
			return
		}
		if executions == nil {
			executions = []database.JobExecution{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(jobHistoryResponse{
			Executions: executions,
			Count:      len(executions),
		}); err != nil {
			log.Printf("Error encoding executions response: %v", err)
		}
	}
}

// RegisterJobsHandlers registers all jobs debug endpoints including execution history
func RegisterJobsHandlers(mux *http.ServeMux, sched *scheduler.Scheduler, store HistoryStore) {
	mux.HandleFunc("/api/debug/jobs", ListJobsHandler(sched))
	mux.HandleFunc("/api/debug/jobs/history", JobHistoryHandler(store))
	mux.HandleFunc("/api/debug/jobs/", TriggerJobHandler(sched)) // Matches /api/debug/jobs/{name}/trigger
	log.Println("Jobs debug handlers registered at /api/debug/jobs")
}
