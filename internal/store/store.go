// Package store provides the key-value abstraction backing every stateful
// component in the service. The reference deployment keeps all state
// volatile, so the only implementation is a mutex-guarded map; components
// take the interface so a durable backend can be injected without touching
// business logic.
package store

import "sync"

// Store is a minimal key-value store. Mutate is the read-modify-write
// primitive: the supplied function runs under the store's lock, so
// check-then-update sequences are atomic with respect to other callers.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Delete(key K)
	Mutate(key K, fn func(value V, ok bool) (V, error)) error
	Range(fn func(key K, value V) bool)
	Len() int
}

// MemoryStore is the in-memory Store implementation
type MemoryStore[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{m: make(map[K]V)}
}

func (s *MemoryStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStore[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemoryStore[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Mutate runs fn under the write lock. If fn returns an error the store is
// left unchanged and the error is returned to the caller.
func (s *MemoryStore[K, V]) Mutate(key K, fn func(value V, ok bool) (V, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	next, err := fn(v, ok)
	if err != nil {
		return err
	}
	s.m[key] = next
	return nil
}

// Range iterates over a snapshot-free view of the store under the read lock.
// fn must not call back into the store.
func (s *MemoryStore[K, V]) Range(fn func(key K, value V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.m {
		if !fn(k, v) {
			return
		}
	}
}

func (s *MemoryStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
