// Package tradeset holds the markets already attempted in this run. An entry
// is added once, on attempt, and is never removed.
package tradeset

import (
	"context"
	"sync"
)

// Memory is a process-local set safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemory returns an empty set.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]struct{})}
}

// TryAdd inserts key and reports whether it was absent. Check and insert are
// one critical section.
func (m *Memory) TryAdd(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

// Contains reports whether key was added.
func (m *Memory) Contains(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

// Len returns the number of keys.
func (m *Memory) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.keys)), nil
}
