package logging

import "time"

// LogEntry represents a single captured log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"` // "DEBUG", "INFO", "WARN", "ERROR"
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Sink receives captured log records attributed to a test.
type Sink interface {
	Capture(testID string, entry LogEntry)
}

// TestResolver returns the id of the test a record belongs to, or "" when
// no test is running.
type TestResolver func() string
