// Package models implements the persistent model kit shared by every
// strategy: a time-gated sampler, a single-value persistent model, a
// fixed-capacity windowed vector, and a reducer that folds a window down
// to a scalar.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-engine/internal/storage"
)

const modelsTable = "models"

// ModelValue pairs a persisted value with the event time it was computed
// at. The "at" timestamp is the event time of the update that produced
// it, never the wall clock.
type ModelValue[T any] struct {
	Value T         `json:"value"`
	At    time.Time `json:"at"`
}

// PersistentModel is a single-value model wrapper: load it from storage,
// update it in place, persist the new value, or wipe it.
type PersistentModel[T any] struct {
	mu        sync.Mutex
	db        storage.Storage
	key       string
	last      *ModelValue[T]
	isLoaded  bool
}

// NewPersistentModel ensures the shared models table exists and returns a
// model wrapper keyed under key, optionally seeded with init.
func NewPersistentModel[T any](db storage.Storage, key string, init *ModelValue[T]) (*PersistentModel[T], error) {
	if err := db.EnsureTable(modelsTable); err != nil {
		return nil, fmt.Errorf("models: ensure table: %w", err)
	}
	return &PersistentModel[T]{db: db, key: key, last: init}, nil
}

// TryLoad hydrates the model from storage exactly once; later calls are a
// no-op so long as the first attempt ran (even if it found nothing).
func (m *PersistentModel[T]) TryLoad() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isLoaded {
		return nil
	}
	raw, err := m.db.Get(modelsTable, []byte(m.key))
	if err == storage.ErrNotFound {
		m.isLoaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("models: load %s: %w", m.key, err)
	}
	var mv ModelValue[T]
	if err := json.Unmarshal(raw, &mv); err != nil {
		return fmt.Errorf("models: unmarshal %s: %w", m.key, err)
	}
	m.last = &mv
	m.isLoaded = true
	return nil
}

// SetLastModel overwrites the in-memory value without persisting it; the
// caller's next Update call will persist it.
func (m *PersistentModel[T]) SetLastModel(value T, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &ModelValue[T]{Value: value, At: at}
}

// Update applies updateFn to the current value (constructing a zero value
// first if none exists), stamps it with eventTime, and persists it.
func (m *PersistentModel[T]) Update(eventTime time.Time, updateFn func(current T) T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current T
	if m.last != nil {
		current = m.last.Value
	}
	next := updateFn(current)
	m.last = &ModelValue[T]{Value: next, At: eventTime}
	return m.persistLocked()
}

func (m *PersistentModel[T]) persistLocked() error {
	data, err := json.Marshal(m.last)
	if err != nil {
		return fmt.Errorf("models: marshal %s: %w", m.key, err)
	}
	if err := m.db.Put(modelsTable, []byte(m.key), data); err != nil {
		return fmt.Errorf("models: persist %s: %w", m.key, err)
	}
	return nil
}

// Value returns the current value and whether one exists.
func (m *PersistentModel[T]) Value() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.last == nil {
		return zero, false
	}
	return m.last.Value, true
}

// LastModelTime returns the event time of the last update, if any.
func (m *PersistentModel[T]) LastModelTime() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return time.Time{}, false
	}
	return m.last.At, true
}

func (m *PersistentModel[T]) HasModel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last != nil
}

func (m *PersistentModel[T]) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLoaded
}

// Wipe deletes the persisted value and clears it in memory.
func (m *PersistentModel[T]) Wipe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Delete(modelsTable, []byte(m.key)); err != nil {
		return fmt.Errorf("models: wipe %s: %w", m.key, err)
	}
	m.last = nil
	return nil
}

// nanoKey zero-pads an int64 nanosecond timestamp to 20 digits (enough
// for any non-negative int64) so lexicographic byte order matches
// numeric order, unlike a naive strconv.FormatInt of the raw value.
func nanoKey(nanos int64) []byte {
	return []byte(fmt.Sprintf("%020d", nanos))
}

func parseNanoKey(key []byte) (int64, error) {
	return strconv.ParseInt(string(key), 10, 64)
}
