package identity

import (
	"context"
	"sync"
)

// MemoryCacheStore is a process-local CacheStore. It backs local development
// hosts that run without redis and the package's own tests.
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCacheStore builds an empty store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		entries: map[string][]byte{},
	}
}

func (m *MemoryCacheStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (m *MemoryCacheStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := make([]byte, len(value))
	copy(raw, value)
	m.entries[key] = raw
	return nil
}

func (m *MemoryCacheStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Len reports the number of cached entries.
func (m *MemoryCacheStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ CacheStore = (*MemoryCacheStore)(nil)
