package help

import (
	"context"
	"sync"
	"time"

	"github.com/arslanovdev/quotecache/internal/store"
)

// MemStore is a minimal in-process store.Client for unit tests that don't
// need real Redis semantics: TTLs are recorded but never actually expire
// entries (no background reaper), while SetIfAbsent and CompareAndDelete
// are enforced, matching the invariants the lock package depends on.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]int64 // seconds; absent means no-expiry (-1 on GetTTL)
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte), ttl: make(map[string]int64)}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemStore) Set(_ context.Context, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	delete(m.ttl, key)
	return nil
}

func (m *MemStore) SetTTL(_ context.Context, key string, raw []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	m.ttl[key] = int64(ttl / time.Second)
	return nil
}

func (m *MemStore) SetIfAbsent(_ context.Context, key string, raw []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = raw
	m.ttl[key] = int64(ttl / time.Second)
	return true, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.ttl, key)
	return nil
}

func (m *MemStore) GetTTL(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return -2, nil
	}
	if seconds, ok := m.ttl[key]; ok {
		return seconds, nil
	}
	return -1, nil
}

func (m *MemStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok || string(v) != string(expected) {
		return false, nil
	}
	delete(m.data, key)
	delete(m.ttl, key)
	return true, nil
}

var _ store.Client = (*MemStore)(nil)
