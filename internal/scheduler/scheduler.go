// Package scheduler enqueues periodic maintenance tasks on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Enqueuer accepts a task for background execution.
type Enqueuer interface {
	Enqueue(task backlite.Task) error
}

// Job is a task enqueued every time Schedule fires.
type Job struct {
	Name     string
	Schedule string
	NewTask  func() backlite.Task
}

// Scheduler runs registered jobs. Jobs only enqueue; the task queue does
// the work, so a slow job never delays the next tick.
type Scheduler struct {
	enqueuer Enqueuer
	logger   zerolog.Logger

	cron      *cron.Cron
	mu        sync.RWMutex
	jobs      map[string]Job
	entries   map[string]cron.EntryID
	isRunning bool
}

// New creates a scheduler that hands tasks to enqueuer.
func New(enqueuer Enqueuer, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		cron:     cron.New(cron.WithParser(parser)),
		jobs:     make(map[string]Job),
		entries:  make(map[string]cron.EntryID),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if err := ValidateCronSchedule(job.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.enqueue(job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	s.entries[job.Name] = entryID
	return nil
}

// Start begins firing jobs and stops them when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.cron.Start()
	s.isRunning = true

	for name, job := range s.jobs {
		next, _ := NextRunTime(job.Schedule, time.Now())
		s.logger.Info().
			Str("job", name).
			Str("schedule", DescribeSchedule(job.Schedule)).
			Time("next_run", next).
			Msg("job scheduled")
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop waits for in-flight enqueues and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	done := s.cron.Stop()
	<-done.Done()
	s.isRunning = false

	s.logger.Info().Msg("scheduler stopped")
}

// RunNow enqueues the named job immediately.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.enqueuer.Enqueue(job.NewTask())
}

// IsRunning returns whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the named job fires next, or nil when the scheduler
// is stopped or the job is unknown.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	entryID, ok := s.entries[name]
	if !ok {
		return nil
	}
	next := s.cron.Entry(entryID).Next
	return &next
}

func (s *Scheduler) enqueue(job Job) {
	if err := s.enqueuer.Enqueue(job.NewTask()); err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("failed to enqueue job")
		return
	}
	s.logger.Debug().Str("job", job.Name).Msg("job enqueued")
}
