package scheduler

import (
	"context"
	"math/rand"
	"time"
)

// Job is a named task the scheduler can run. Run must honor ctx; the
// scheduler cancels it on shutdown and on per-job timeout.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next, given when it last started.
type Schedule interface {
	Next(after time.Time) time.Time
}

// JobConfig carries the per-job knobs the registrar sets.
type JobConfig struct {
	Enabled bool
	Timeout time.Duration // Maximum execution time (0 = no timeout)
}

// IntervalSchedule fires at a fixed interval, optionally smeared by a
// random jitter so a fleet of deployments does not sync in lockstep.
type IntervalSchedule struct {
	interval time.Duration
	jitter   time.Duration
}

// NewIntervalSchedule returns a schedule with no jitter.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return NewIntervalScheduleWithJitter(interval, 0)
}

// NewIntervalScheduleWithJitter returns a schedule that fires every
// interval plus a random delay in [0, jitter).
func NewIntervalScheduleWithJitter(interval, jitter time.Duration) *IntervalSchedule {
	return &IntervalSchedule{interval: interval, jitter: jitter}
}

func (s *IntervalSchedule) Next(after time.Time) time.Time {
	next := after.Add(s.interval)
	if s.jitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(s.jitter))))
	}
	return next
}
