// Package cron runs named maintenance jobs on cron schedules.
//
// A Trigger runs one callback according to a 5-field cron schedule until its
// context is cancelled. A Manager builds one Trigger per entry of a schedule
// spec such as "snapshot:*/5 * * * *;snapshot,flush:0 * * * *".
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Job is anything that can be run on a schedule.
type Job interface {
	Run() error
}

// JobFunc adapts a function to Job.
type JobFunc func() error

// Run calls f.
func (f JobFunc) Run() error {
	return f()
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger runs a Job according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
	now      func() time.Time
}

// NewTrigger creates a Trigger. Returns ErrInvalidCronSpec if spec cannot be parsed.
func NewTrigger(spec string, job Job, logger *slog.Logger) (*Trigger, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &Trigger{
		spec:     spec,
		schedule: schedule,
		job:      job,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start launches the scheduling goroutine and returns immediately. The
// goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(t.now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.NextRun()
		wait := time.Until(next)

		t.logger.Debug("waiting for next scheduled run", "schedule", t.spec, "next_run", next, "wait_duration", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Debug("cron trigger shutting down", "schedule", t.spec)
			return
		case <-timer.C:
			t.execute()
		}
	}
}

func (t *Trigger) execute() {
	if err := t.job.Run(); err != nil {
		t.logger.Warn("scheduled job failed", "schedule", t.spec, "error", err)
		return
	}
	t.logger.Debug("scheduled job completed", "schedule", t.spec)
}
