// Package state provides the small key-value stores the driver keeps for
// runtime state, static configuration and environment variables.
//
// A Store never hands out its backing map: All returns a copy, and values
// only change through Set and Merge.
//
//	cfg := state.New(map[string]any{"isTextTerminal": true})
//	cfg.Set("numTestsKeptInMemory", 5).Set("namespace", "__driver")
//	if cfg.Bool("isTextTerminal") {
//	    // headless run
//	}
package state

import "sync"

// Store is a thread-safe string-keyed mapping.
type Store struct {
	values map[string]any
	mu     sync.RWMutex
}

// New creates a store seeded with a copy of initial. A nil map yields an empty store.
func New(initial map[string]any) *Store {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Store{values: values}
}

// All returns a copy of the entire mapping.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any, len(s.values))
	for k, v := range s.values {
		result[k] = v
	}
	return result
}

// Get returns the value stored for key. The second result is false when the key is unset.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set inserts or overwrites a single key and returns the store for chaining.
func (s *Store) Set(key string, value any) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s
}

// Merge sets every key in values.
func (s *Store) Merge(values map[string]any) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Len returns the number of keys currently set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Bool returns the value for key when it is a bool, false otherwise.
func (s *Store) Bool(key string) bool {
	v, _ := Lookup[bool](s, key)
	return v
}

// String returns the value for key when it is a string, "" otherwise.
func (s *Store) String(key string) string {
	v, _ := Lookup[string](s, key)
	return v
}

// Int returns the value for key as an int. Any integer or float kind is
// converted; anything else reads as 0.
func (s *Store) Int(key string) int {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Lookup returns the value for key when it is set and holds a T.
func Lookup[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
