package storage

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Storage backend, used in tests and for
// paper-trading runs that don't need durability across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) EnsureTable(table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[string][]byte)
	}
	return nil
}

func (m *MemoryStore) Put(table string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string][]byte)
		m.tables[table] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t[string(key)] = cp
	return nil
}

func (m *MemoryStore) Get(table string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := t[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemoryStore) GetRange(table string, from, to []byte) ([]KeyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}

	var keys [][]byte
	for k := range t {
		kb := []byte(k)
		if bytes.Compare(kb, from) >= 0 && bytes.Compare(kb, to) < 0 {
			keys = append(keys, kb)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeyValue{Key: k, Value: t[string(k)]})
	}
	return out, nil
}

func (m *MemoryStore) GetAll(table string) ([]KeyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}

	var keys [][]byte
	for k := range t {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeyValue{Key: k, Value: t[string(k)]})
	}
	return out, nil
}

func (m *MemoryStore) Delete(table string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		delete(t, string(key))
	}
	return nil
}

func (m *MemoryStore) DeleteRange(table string, from, to []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	for k := range t {
		kb := []byte(k)
		if bytes.Compare(kb, from) >= 0 && bytes.Compare(kb, to) < 0 {
			delete(t, k)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Storage = (*MemoryStore)(nil)
