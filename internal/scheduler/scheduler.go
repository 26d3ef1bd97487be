package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

// Job is one periodic background task.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs background jobs on fixed intervals. A job never overlaps
// with a still-running instance of itself.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []Job
}

// New creates a new Scheduler.
func New(jobs ...Job) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		jobs:      jobs,
	}
}

// Start schedules every job and starts the underlying scheduler. Each job
// runs once immediately.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		log.L.Info("scheduler: no jobs configured; nothing to schedule")
		return nil
	}

	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			return errors.New("scheduler: job " + job.Name + " needs a positive interval and a run func")
		}
		if _, err := s.scheduler.Every(job.Interval).Tag(job.Name).Do(s.wrap(job)); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) wrap(job Job) func() {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Interval
	}

	return func() {
		ctx, _ := log.WithCorrelationID(context.Background())
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		logger := log.ForContext(ctx).WithField("job", job.Name)
		started := time.Now()
		logger.Debug("scheduler: job started")

		if err := job.Run(ctx); err != nil {
			logger.WithError(err).Error("scheduler: job failed")
			return
		}
		logger.WithField("duration", time.Since(started).String()).Debug("scheduler: job completed")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
