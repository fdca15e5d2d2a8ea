package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process pipelines where persistence isn't required
//
// MemStore is thread-safe. Data is lost when the process terminates; use
// FileStore or SQLiteStore for durable runs.
type MemStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

// Add writes value under key, honoring the overwrite flag.
func (m *MemStore) Add(_ context.Context, key string, value []byte, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.values[key]; exists && !overwrite {
		return ErrKeyExists
	}
	// Copy so callers cannot mutate stored bytes.
	buf := make([]byte, len(value))
	copy(buf, value)
	m.values[key] = buf
	return nil
}

// Get returns the value under key, or ErrNotFound.
func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	if !exists {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

// Delete removes key, or fails with ErrNotFound.
func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.values[key]; !exists {
		return ErrNotFound
	}
	delete(m.values, key)
	return nil
}

// ListKeys returns all present keys.
func (m *MemStore) ListKeys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		keys = append(keys, key)
	}
	return keys, nil
}
