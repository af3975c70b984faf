package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Manager owns the triggers built from a schedule spec.
type Manager struct {
	triggers []*Trigger
	logger   *slog.Logger
}

// NewManager parses spec and creates one Trigger per entry. Jobs listed in
// one entry run in order; a failing job does not stop the ones after it.
func NewManager(spec string, jobs map[string]Job, logger *slog.Logger) (*Manager, error) {
	available := make(map[string]bool, len(jobs))
	for name := range jobs {
		available[name] = true
	}

	specs, err := ParseTriggerSpecs(spec, available)
	if err != nil {
		return nil, err
	}

	triggers := make([]*Trigger, 0, len(specs))
	for _, ts := range specs {
		names := ts.Jobs
		run := JobFunc(func() error {
			var errs []error
			for _, name := range names {
				if err := jobs[name].Run(); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
				}
			}
			return errors.Join(errs...)
		})

		trigger, err := NewTrigger(ts.CronSpec, run, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w", strings.Join(ts.Jobs, ","), ts.CronSpec, err)
		}
		triggers = append(triggers, trigger)

		logger.Info("cron trigger registered", "jobs", ts.Jobs, "schedule", ts.CronSpec, "next_run", trigger.NextRun())
	}

	return &Manager{triggers: triggers, logger: logger}, nil
}

// Start launches all triggers and returns immediately.
func (m *Manager) Start(ctx context.Context) {
	for _, t := range m.triggers {
		t.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run across all triggers, or the zero
// time if there are none.
func (m *Manager) NextRun() time.Time {
	var earliest time.Time
	for _, t := range m.triggers {
		next := t.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
