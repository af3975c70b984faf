package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CopiesInitial(t *testing.T) {
	initial := map[string]any{"a": 1}
	s := New(initial)

	initial["a"] = 2
	initial["b"] = 3

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestNew_Nil(t *testing.T) {
	s := New(nil)
	assert.Empty(t, s.All())
	assert.Equal(t, 0, s.Len())
}

func TestStore_GetUnset(t *testing.T) {
	s := New(nil)

	v, ok := s.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestStore_LastWriteWins(t *testing.T) {
	tests := []struct {
		name   string
		writes []any
	}{
		{name: "single write", writes: []any{"x"}},
		{name: "overwrite same type", writes: []any{1, 2, 3}},
		{name: "overwrite different type", writes: []any{"x", 42, true}},
		{name: "overwrite with nil", writes: []any{"x", nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil)
			for _, w := range tt.writes {
				s.Set("key", w)
			}

			v, ok := s.Get("key")
			require.True(t, ok)
			assert.Equal(t, tt.writes[len(tt.writes)-1], v)
		})
	}
}

func TestStore_SetChains(t *testing.T) {
	s := New(nil)
	got := s.Set("a", 1).Set("b", 2)

	assert.Same(t, s, got)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, s.All())
}

func TestStore_Merge(t *testing.T) {
	s := New(map[string]any{"a": 1, "b": 2})
	s.Merge(map[string]any{"b": 20, "c": 30})

	assert.Equal(t, map[string]any{"a": 1, "b": 20, "c": 30}, s.All())
}

func TestStore_AllReturnsCopy(t *testing.T) {
	s := New(map[string]any{"a": 1})

	all := s.All()
	all["a"] = 99
	all["z"] = true

	v, _ := s.Get("a")
	assert.Equal(t, 1, v)
	_, ok := s.Get("z")
	assert.False(t, ok)
}

func TestStore_TypedReaders(t *testing.T) {
	s := New(map[string]any{
		"flag":    true,
		"name":    "driver",
		"count":   3,
		"float":   float64(7),
		"int64":   int64(9),
		"notBool": "true",
	})

	assert.True(t, s.Bool("flag"))
	assert.False(t, s.Bool("notBool"))
	assert.False(t, s.Bool("missing"))

	assert.Equal(t, "driver", s.String("name"))
	assert.Equal(t, "", s.String("count"))

	assert.Equal(t, 3, s.Int("count"))
	assert.Equal(t, 7, s.Int("float"))
	assert.Equal(t, 9, s.Int("int64"))
	assert.Equal(t, 0, s.Int("name"))
	assert.Equal(t, 0, s.Int("missing"))
}

func TestLookup(t *testing.T) {
	s := New(map[string]any{"name": "driver"})

	v, ok := Lookup[string](s, "name")
	assert.True(t, ok)
	assert.Equal(t, "driver", v)

	n, ok := Lookup[int](s, "name")
	assert.False(t, ok)
	assert.Equal(t, 0, n)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set(fmt.Sprintf("k%d", i), j)
				s.Get(fmt.Sprintf("k%d", i))
				s.All()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, 99, s.Int(fmt.Sprintf("k%d", i)))
	}
}
