package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is a process-local Backend for tests and --no-persist runs.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, records ...Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.data[r.Key] = append([]byte(nil), r.Value...)
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.data))
	for key, value := range m.data {
		records = append(records, Record{Key: key, Value: append([]byte(nil), value...)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *MemoryBackend) Size(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var size int64
	for key, value := range m.data {
		size += int64(len(key) + len(value))
	}
	return size, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
