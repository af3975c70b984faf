package history

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
)

// Store keeps test records in first-seen order.
type Store struct {
	logger  *slog.Logger
	metrics *metrics.DriverMetrics
	now     func() time.Time

	mu    sync.Mutex
	queue []*TestRecord
	byID  map[string]*TestRecord
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records evictions and the retained count.
func WithMetrics(m *metrics.DriverMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger: logging.Discard(),
		now:    time.Now,
		byID:   make(map[string]*TestRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track queues r if it is a test that has not been seen yet.
// Hooks and suites are ignored.
func (s *Store) Track(r Runnable) {
	if r.ID == "" || (r.Type != "" && r.Type != "test") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(r.ID)
	if rec.Title == "" {
		rec.Title = r.Title
	}
}

// AddLog inserts or replaces a command log entry on its test. Headless runs
// cannot inspect logs, so nothing is kept when interactive is false.
func (s *Store) AddLog(entry CommandLog, interactive bool) {
	if !interactive || entry.TestID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(entry.TestID)
	for i := range rec.Logs {
		if rec.Logs[i].ID == entry.ID {
			rec.Logs[i] = entry
			return
		}
	}
	rec.Logs = append(rec.Logs, entry)
}

// Capture implements logging.Sink, storing driver diagnostics on the test.
// Diagnostics for a test that is not queued, or was already evicted, are
// dropped.
func (s *Store) Capture(testID string, entry logging.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[testID]; ok {
		rec.Diagnostics = append(rec.Diagnostics, entry)
	}
}

// recordLocked returns the record for id, queueing a new one if needed.
func (s *Store) recordLocked(id string) *TestRecord {
	if rec, ok := s.byID[id]; ok {
		return rec
	}
	rec := &TestRecord{ID: id, FirstSeen: s.now()}
	s.byID[id] = rec
	s.queue = append(s.queue, rec)
	return rec
}

// CleanupQueue evicts the oldest records until at most retain remain and
// returns the number evicted. A retain of zero or less keeps nothing.
func (s *Store) CleanupQueue(retain int) int {
	if retain < 0 {
		retain = 0
	}

	s.mu.Lock()
	evicted := 0
	for len(s.queue) > retain {
		oldest := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		delete(s.byID, oldest.ID)
		evicted++
	}
	remaining := len(s.queue)
	s.mu.Unlock()

	s.metrics.HistoryTrimmed(evicted, remaining)
	if evicted > 0 {
		s.logger.Debug("evicted test history", "evicted", evicted, "retained", remaining)
	}
	return evicted
}

// Tests returns copies of all retained records, oldest first.
func (s *Store) Tests() []TestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]TestRecord, len(s.queue))
	for i, rec := range s.queue {
		result[i] = rec.clone()
	}
	return result
}

// Test returns a copy of the record for id.
func (s *Store) Test(id string) (TestRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return TestRecord{}, false
	}
	return rec.clone(), true
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Reset drops every record.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.byID = make(map[string]*TestRecord)
}
