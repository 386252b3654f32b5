// Package scheduler runs registered jobs at configured intervals and
// records their executions for the job history endpoints.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// stopDrainTimeout bounds how long Stop waits for in-flight jobs.
const stopDrainTimeout = 30 * time.Second

// ExecutionRecorder persists job runs.
// Implemented by database.DB. A nil recorder disables persistence.
type ExecutionRecorder interface {
	RecordJobStart(jobName string) (int64, error)
	RecordJobSuccess(executionID int64) error
	RecordJobFailure(executionID int64, errorMsg string) error
}

// jobEntry is one registered job with its schedule and timer state.
type jobEntry struct {
	job      Job
	schedule Schedule
	config   JobConfig
	nextRun  time.Time
	timer    *time.Timer
}

// Scheduler owns the registered jobs and their timers. Timer callbacks
// re-arm themselves after each run; Stop cancels the shared context and
// drains in-flight executions.
type Scheduler struct {
	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	recorder ExecutionRecorder
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler that records executions through recorder.
func New(recorder ExecutionRecorder) *Scheduler {
	return &Scheduler{
		jobs:     make(map[string]*jobEntry),
		recorder: recorder,
	}
}

// AddJob registers a job with the scheduler. Disabled jobs are dropped
// here so the rest of the scheduler never sees them.
func (s *Scheduler) AddJob(job Job, schedule Schedule, config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("duplicate job %s", name)
	}

	if !config.Enabled {
		log.Printf("[scheduler] Job %s disabled, not scheduling", name)
		return nil
	}

	entry := &jobEntry{
		job:      job,
		schedule: schedule,
		config:   config,
		nextRun:  schedule.Next(time.Now()),
	}
	s.jobs[name] = entry

	log.Printf("[scheduler] Registered job: %s, next run: %s", name, entry.nextRun.Format(time.RFC3339))
	return nil
}

// Start arms a timer for every registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler is already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for name, entry := range s.jobs {
		log.Printf("[scheduler] Launching job %s", name)
		s.armTimer(name, entry)
	}

	log.Printf("[scheduler] Running %d jobs", len(s.jobs))
	return nil
}

// armTimer schedules the callback for the entry's nextRun time.
// Callers hold s.mu.
func (s *Scheduler) armTimer(name string, entry *jobEntry) {
	wait := time.Until(entry.nextRun)
	if wait < 0 {
		wait = 0
	}
	entry.timer = time.AfterFunc(wait, func() { s.timerFired(name, entry) })
}

// timerFired runs the job once and re-arms the timer for the next
// scheduled execution.
func (s *Scheduler) timerFired(name string, entry *jobEntry) {
	s.mu.RLock()
	stopped := s.ctx.Err() != nil
	s.mu.RUnlock()
	if stopped {
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	s.execute(name, entry)

	s.mu.Lock()
	entry.nextRun = entry.schedule.Next(time.Now())
	log.Printf("[scheduler] Job %s next run: %s", name, entry.nextRun.Format(time.RFC3339))
	s.armTimer(name, entry)
	s.mu.Unlock()
}

// execute runs the job once under its configured timeout and records the
// outcome. Shared by scheduled and manual executions.
func (s *Scheduler) execute(name string, entry *jobEntry) {
	ctx := s.ctx
	if entry.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, entry.config.Timeout)
		defer cancel()
	}

	var executionID int64
	if s.recorder != nil {
		id, err := s.recorder.RecordJobStart(name)
		if err != nil {
			log.Printf("[scheduler] Warning: failed to record start of job %s: %v", name, err)
		} else {
			executionID = id
		}
	}

	log.Printf("[scheduler] Executing job: %s", name)
	start := time.Now()
	err := entry.job.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[scheduler] Job %s failed after %v: %v", name, elapsed, err)
	} else {
		log.Printf("[scheduler] Job %s completed successfully in %v", name, elapsed)
	}

	if s.recorder == nil || executionID == 0 {
		return
	}
	var recordErr error
	if err != nil {
		recordErr = s.recorder.RecordJobFailure(executionID, err.Error())
	} else {
		recordErr = s.recorder.RecordJobSuccess(executionID)
	}
	if recordErr != nil {
		log.Printf("[scheduler] Warning: failed to record outcome of job %s: %v", name, recordErr)
	}
}

// RunJobNow triggers a job outside its schedule. The run happens on its
// own goroutine and does not shift the job's next scheduled time.
func (s *Scheduler) RunJobNow(name string) error {
	s.mu.RLock()
	entry, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[scheduler] Manually executing job: %s", name)
		s.execute(name, entry)
	}()

	return nil
}

// Stop cancels all timers and waits for in-flight jobs to finish, up to
// stopDrainTimeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}

	log.Printf("[scheduler] Stopping scheduler...")
	s.cancel()

	for name, entry := range s.jobs {
		if entry.timer != nil {
			entry.timer.Stop()
			log.Printf("[scheduler] Stopped timer for job: %s", name)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[scheduler] All jobs stopped gracefully")
	case <-time.After(stopDrainTimeout):
		log.Printf("[scheduler] Timeout waiting for jobs to stop")
	}

	return nil
}

// GetJobs lists the registered job names in no particular order.
func (s *Scheduler) GetJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// GetNextRun reports when the named job fires next.
func (s *Scheduler) GetNextRun(name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.jobs[name]
	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", name)
	}

	return entry.nextRun, nil
}
