package label

import (
	"context"
	"sync"
	"time"

	"github.com/nao1215/chaincrawl/internal/model"
)

// missKey identifies a per-provider miss record.
type missKey struct {
	provider string
	addr     model.Address
}

// MemoryStore is a Store that keeps records in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	labels map[model.Address]Record
	misses map[missKey]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		labels: make(map[model.Address]Record),
		misses: make(map[missKey]time.Time),
	}
}

// GetLabel implements Store.
func (m *MemoryStore) GetLabel(_ context.Context, addr model.Address) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.labels[addr]
	return rec, ok, nil
}

// PutLabel implements Store.
func (m *MemoryStore) PutLabel(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[rec.Address] = rec
	return nil
}

// GetMiss implements Store.
func (m *MemoryStore) GetMiss(_ context.Context, provider string, addr model.Address) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.misses[missKey{provider: provider, addr: addr}]
	return at, ok, nil
}

// PutMiss implements Store.
func (m *MemoryStore) PutMiss(_ context.Context, provider string, addr model.Address, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses[missKey{provider: provider, addr: addr}] = at
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
