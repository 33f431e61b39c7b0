package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and embedded use.
type MemoryStore struct {
	entries []Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements Store.
func (m *MemoryStore) Record(ctx context.Context, e Entry) (Entry, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

// Discard implements Store.
func (m *MemoryStore) Discard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Count returns the number of stored entries.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
