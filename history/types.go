// Package history keeps the diagnostic history of executed tests and bounds
// it by count.
//
// Tests are queued in the order they are first seen. CleanupQueue evicts the
// oldest records until no more than the requested number remain, so memory
// stays bounded across long suites when it runs after every test.
package history

import (
	"time"

	"github.com/nomis52/specdriver/logging"
)

// Runnable describes a test, hook or suite handed around by the test framework adapter.
type Runnable struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	// Type is one of "test", "hook" or "suite".
	Type string `json:"type" yaml:"type"`
}

// CommandLog is one entry of a test's command log. Entries are keyed by ID;
// a later entry with the same ID replaces the earlier one.
type CommandLog struct {
	ID         string         `json:"id" yaml:"id"`
	TestID     string         `json:"test_id" yaml:"testId"`
	Instrument string         `json:"instrument,omitempty" yaml:"instrument"`
	Name       string         `json:"name" yaml:"name"`
	Message    string         `json:"message,omitempty" yaml:"message"`
	State      string         `json:"state,omitempty" yaml:"state"`
	Time       time.Time      `json:"time" yaml:"time"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes"`
}

// TestRecord is the retained history of one test.
type TestRecord struct {
	ID          string             `json:"id"`
	Title       string             `json:"title,omitempty"`
	FirstSeen   time.Time          `json:"first_seen"`
	Logs        []CommandLog       `json:"logs,omitempty"`
	Diagnostics []logging.LogEntry `json:"diagnostics,omitempty"`
}

func (r *TestRecord) clone() TestRecord {
	c := *r
	c.Logs = append([]CommandLog(nil), r.Logs...)
	c.Diagnostics = append([]logging.LogEntry(nil), r.Diagnostics...)
	return c
}
