package store_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseralabs/tessera-api/internal/store"
)

func TestMemoryStore_Basics(t *testing.T) {
	s := store.NewMemoryStore[string, int]()

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	s.Put("a", 1)
	s.Put("b", 2)
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, s.Len())

	s.Put("a", 10)
	v, _ = s.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, s.Len())

	s.Delete("a")
	_, ok = s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	// Deleting a missing key is a no-op.
	s.Delete("missing")
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Mutate(t *testing.T) {
	s := store.NewMemoryStore[string, int]()

	err := s.Mutate("counter", func(v int, ok bool) (int, error) {
		assert.False(t, ok)
		return v + 1, nil
	})
	require.NoError(t, err)

	err = s.Mutate("counter", func(v int, ok bool) (int, error) {
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		return v + 1, nil
	})
	require.NoError(t, err)

	v, _ := s.Get("counter")
	assert.Equal(t, 2, v)
}

func TestMemoryStore_MutateErrorLeavesStoreUnchanged(t *testing.T) {
	s := store.NewMemoryStore[string, int]()
	s.Put("a", 1)

	err := s.Mutate("a", func(v int, ok bool) (int, error) {
		return 99, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// A failed mutation of a missing key does not create it.
	err = s.Mutate("b", func(v int, ok bool) (int, error) {
		return 5, assert.AnError
	})
	assert.Error(t, err)
	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestMemoryStore_MutateIsAtomic(t *testing.T) {
	s := store.NewMemoryStore[string, int]()
	const workers = 50
	const increments = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				_ = s.Mutate("counter", func(v int, ok bool) (int, error) {
					return v + 1, nil
				})
			}
		}()
	}
	wg.Wait()

	v, _ := s.Get("counter")
	assert.Equal(t, workers*increments, v)
}

func TestMemoryStore_Range(t *testing.T) {
	s := store.NewMemoryStore[string, int]()
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("c", 3)

	seen := map[string]int{}
	s.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, seen)

	// Early termination stops after the first element.
	count := 0
	s.Range(func(k string, v int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}
