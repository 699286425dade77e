// Package scheduler runs the refresh job on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const jobTag = "refresh"

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler periodically runs a Job. Runs never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       Job
	interval  time.Duration
	logger    *slog.Logger
	ctx       context.Context
}

// New creates a Scheduler. The job runs once on Start and then every interval.
func New(interval time.Duration, job Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the job and starts the underlying scheduler. ctx is passed
// to every run; cancelling it aborts a run in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("schedule interval must be positive")
	}
	s.ctx = ctx

	_, err := s.scheduler.Every(s.interval).Tag(jobTag).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval.String())
	s.scheduler.StartAsync()
	return nil
}

// Trigger runs the job now, outside the schedule.
func (s *Scheduler) Trigger() error {
	if !s.scheduler.IsRunning() {
		return errors.New("scheduler not started")
	}
	return s.scheduler.RunByTag(jobTag)
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) run() {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("scheduled run starting")
	if err := s.job(s.ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run complete")
}
