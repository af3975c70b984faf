package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const snapshotTimeFormat = "2006-01-02T15-04-05.000"

// Snapshot is the on-disk form of the retained history at one point in time.
type Snapshot struct {
	TakenAt time.Time    `json:"taken_at"`
	Tests   []TestRecord `json:"tests"`
}

// Source supplies the records to persist.
type Source interface {
	Tests() []TestRecord
}

// Snapshotter persists the retained history to a directory as JSON files,
// keeping at most maxCount of them.
type Snapshotter struct {
	dir      string
	maxCount int
	source   Source
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewSnapshotter creates a Snapshotter. The directory is created if it doesn't exist.
func NewSnapshotter(dir string, maxCount int, source Source, logger *slog.Logger) (*Snapshotter, error) {
	if maxCount < 1 {
		return nil, fmt.Errorf("max_count must be at least 1, got %d", maxCount)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Snapshotter{
		dir:      dir,
		maxCount: maxCount,
		source:   source,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run takes a snapshot. It satisfies the cron runnable contract.
func (s *Snapshotter) Run() error {
	_, err := s.Save()
	return err
}

// Save writes the current history and prunes old snapshots. It returns the
// path written.
func (s *Snapshotter) Save() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TakenAt: s.now(),
		Tests:   s.source.Tests(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(s.dir, snap.TakenAt.UTC().Format(snapshotTimeFormat)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	s.logger.Debug("saved history snapshot", "path", path, "tests", len(snap.Tests))

	if err := s.prune(); err != nil {
		s.logger.Warn("failed to prune snapshots", "error", err)
	}
	return path, nil
}

// Latest loads the most recent snapshot. It returns false if none exist.
func (s *Snapshotter) Latest() (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return Snapshot{}, false, err
	}

	// Newest first; skip unreadable files the way a reload would.
	for _, name := range files {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read snapshot", "file", path, "error", err)
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("failed to parse snapshot", "file", path, "error", err)
			continue
		}
		return snap, true, nil
	}
	return Snapshot{}, false, nil
}

// files returns snapshot file names, newest first.
func (s *Snapshotter) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	// The timestamp format sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *Snapshotter) prune() error {
	names, err := s.files()
	if err != nil {
		return err
	}
	if len(names) <= s.maxCount {
		return nil
	}

	var errs []error
	for _, name := range names[s.maxCount:] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove %d snapshots: %w", len(errs), errs[0])
	}
	return nil
}
