package session

import (
	"context"
	"sync"
)

// MemoryStore keeps identifiers in process memory.
type MemoryStore struct {
	values sync.Map
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values.Load(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

// SetIfAbsent stores value unless key is already set.
func (m *MemoryStore) SetIfAbsent(_ context.Context, key, value string) (string, error) {
	actual, _ := m.values.LoadOrStore(key, value)
	return actual.(string), nil
}

// ReplaceEmpty stores value while key is missing or holds "".
func (m *MemoryStore) ReplaceEmpty(_ context.Context, key, value string) (string, error) {
	for {
		actual, loaded := m.values.LoadOrStore(key, value)
		if !loaded {
			return value, nil
		}
		if actual.(string) != "" {
			return actual.(string), nil
		}
		if m.values.CompareAndSwap(key, "", value) {
			return value, nil
		}
	}
}
