package history

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
)

func testIDs(records []TestRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestStore_TrackIgnoresHooksAndSuites(t *testing.T) {
	s := NewStore()

	s.Track(Runnable{ID: "r1", Title: "logs in", Type: "test"})
	s.Track(Runnable{ID: "h1", Type: "hook"})
	s.Track(Runnable{ID: "s1", Type: "suite"})
	s.Track(Runnable{ID: ""})

	require.Equal(t, []string{"r1"}, testIDs(s.Tests()))
	rec, ok := s.Test("r1")
	require.True(t, ok)
	assert.Equal(t, "logs in", rec.Title)
}

func TestStore_TrackIsIdempotent(t *testing.T) {
	s := NewStore()

	s.Track(Runnable{ID: "r1", Title: "first"})
	s.Track(Runnable{ID: "r2"})
	s.Track(Runnable{ID: "r1", Title: "second"})

	assert.Equal(t, []string{"r1", "r2"}, testIDs(s.Tests()))
	rec, _ := s.Test("r1")
	assert.Equal(t, "first", rec.Title)
}

func TestStore_AddLog(t *testing.T) {
	tests := []struct {
		name        string
		interactive bool
		entries     []CommandLog
		wantLogs    []CommandLog
	}{
		{
			name:        "headless keeps nothing",
			interactive: false,
			entries:     []CommandLog{{ID: "l1", TestID: "r1", Name: "visit"}},
		},
		{
			name:        "interactive appends",
			interactive: true,
			entries: []CommandLog{
				{ID: "l1", TestID: "r1", Name: "visit"},
				{ID: "l2", TestID: "r1", Name: "get"},
			},
			wantLogs: []CommandLog{
				{ID: "l1", TestID: "r1", Name: "visit"},
				{ID: "l2", TestID: "r1", Name: "get"},
			},
		},
		{
			name:        "same id replaces",
			interactive: true,
			entries: []CommandLog{
				{ID: "l1", TestID: "r1", Name: "visit", State: "pending"},
				{ID: "l1", TestID: "r1", Name: "visit", State: "passed"},
			},
			wantLogs: []CommandLog{
				{ID: "l1", TestID: "r1", Name: "visit", State: "passed"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for _, e := range tt.entries {
				s.AddLog(e, tt.interactive)
			}

			rec, ok := s.Test("r1")
			if tt.wantLogs == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantLogs, rec.Logs)
		})
	}
}

func TestStore_AddLogWithoutTestIsDropped(t *testing.T) {
	s := NewStore()
	s.AddLog(CommandLog{ID: "l1", Name: "visit"}, true)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Capture(t *testing.T) {
	s := NewStore()
	var sink logging.Sink = s

	s.Track(Runnable{ID: "r1"})
	sink.Capture("r1", logging.LogEntry{Level: "INFO", Message: "request sent"})
	sink.Capture("gone", logging.LogEntry{Level: "INFO", Message: "dropped"})

	rec, ok := s.Test("r1")
	require.True(t, ok)
	require.Len(t, rec.Diagnostics, 1)
	assert.Equal(t, "request sent", rec.Diagnostics[0].Message)

	_, ok = s.Test("gone")
	assert.False(t, ok)
}

func TestStore_CleanupQueue(t *testing.T) {
	tests := []struct {
		name        string
		retain      int
		wantIDs     []string
		wantEvicted int
	}{
		{name: "retain two of three", retain: 2, wantIDs: []string{"T2", "T3"}, wantEvicted: 1},
		{name: "retain more than held", retain: 5, wantIDs: []string{"T1", "T2", "T3"}, wantEvicted: 0},
		{name: "zero keeps nothing", retain: 0, wantIDs: []string{}, wantEvicted: 3},
		{name: "negative keeps nothing", retain: -1, wantIDs: []string{}, wantEvicted: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for _, id := range []string{"T1", "T2", "T3"} {
				s.Track(Runnable{ID: id, Type: "test"})
			}

			evicted := s.CleanupQueue(tt.retain)

			assert.Equal(t, tt.wantEvicted, evicted)
			assert.Equal(t, tt.wantIDs, testIDs(s.Tests()))
		})
	}
}

func TestStore_CleanupAfterEachTest(t *testing.T) {
	s := NewStore()

	for _, id := range []string{"T1", "T2", "T3"} {
		s.Track(Runnable{ID: id, Type: "test"})
		s.AddLog(CommandLog{ID: id + "-log", TestID: id}, true)
		s.CleanupQueue(2)
	}

	assert.Equal(t, []string{"T2", "T3"}, testIDs(s.Tests()))
	_, ok := s.Test("T1")
	assert.False(t, ok)

	// An evicted test seen again is queued as new.
	s.AddLog(CommandLog{ID: "late", TestID: "T1"}, true)
	assert.Equal(t, []string{"T2", "T3", "T1"}, testIDs(s.Tests()))
}

func TestStore_TestsReturnsCopies(t *testing.T) {
	s := NewStore()
	s.AddLog(CommandLog{ID: "l1", TestID: "r1", Name: "visit"}, true)

	records := s.Tests()
	records[0].Logs[0].Name = "mutated"

	rec, _ := s.Test("r1")
	assert.Equal(t, "visit", rec.Logs[0].Name)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.Track(Runnable{ID: "r1"})
	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Tests())
}

func TestStore_Metrics(t *testing.T) {
	registry, err := metrics.NewScrapeRegistry(false)
	require.NoError(t, err)
	m, err := metrics.NewDriverMetrics(registry)
	require.NoError(t, err)

	s := NewStore(WithMetrics(m))
	for i := 1; i <= 4; i++ {
		s.Track(Runnable{ID: fmt.Sprintf("T%d", i)})
	}
	s.CleanupQueue(1)

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "specdriver_history_evictions_total 3")
	assert.Contains(t, w.Body.String(), "specdriver_history_retained_tests 1")
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("T%d", i)
			s.Track(Runnable{ID: id})
			s.AddLog(CommandLog{ID: "l", TestID: id}, true)
			s.Capture(id, logging.LogEntry{Message: "m"})
			s.CleanupQueue(10)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 10)
}
