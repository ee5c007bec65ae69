// Package scheduler fires the daily rollup on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is the callback invoked when the rollup timer fires.
type Job func(ctx context.Context)

// Scheduler runs the rollup job on a cron expression.
type Scheduler struct {
	schedule string
	job      Job
	cron     *cron.Cron
	log      *slog.Logger
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler firing job on the given cron expression.
func New(schedule string, job Job, log *slog.Logger) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		job:      job,
		cron:     cron.New(cron.WithParser(cronParser)),
		log:      log,
	}
}

// Start registers the rollup entry and starts the cron ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.log.Info("rollup timer fired", "schedule", s.schedule)
		s.job(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("rollup scheduled", "schedule", s.schedule)
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
