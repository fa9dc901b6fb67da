package models

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-engine/internal/storage"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// defaultMaxSizeFactor is applied to windowSize when the caller does not
// supply an explicit max_size: the vector is allowed to grow 20% past the
// window before it drains back down.
const defaultMaxSizeFactor = 1.2

// WindowedModel is a fixed-capacity, append-only vector of timestamped
// values backed by a storage table keyed by zero-padded nanosecond
// timestamp. Once len exceeds maxSize, the oldest (maxSize-windowSize)
// entries are drained in a single range-delete.
type WindowedModel[T any] struct {
	mu         sync.Mutex
	db         storage.Storage
	table      string
	windowSize int
	maxSize    int
	rows       []types.TimedValue[T]
	isLoaded   bool
}

// NewWindowedModel ensures the rows table exists and returns an empty
// windowed model. maxSize, if zero, defaults to 1.2 * windowSize.
func NewWindowedModel[T any](db storage.Storage, id string, windowSize, maxSize int) (*WindowedModel[T], error) {
	if maxSize == 0 {
		maxSize = int(defaultMaxSizeFactor * float64(windowSize))
	}
	if maxSize <= windowSize {
		return nil, fmt.Errorf("models: max_size %d must exceed window_size %d", maxSize, windowSize)
	}
	table := id + "_rows"
	if err := db.EnsureTable(table); err != nil {
		return nil, fmt.Errorf("models: ensure table %s: %w", table, err)
	}
	return &WindowedModel[T]{db: db, table: table, windowSize: windowSize, maxSize: maxSize}, nil
}

// Push appends row under ts (nanoseconds), writes it through to storage,
// and drains the oldest entries if the vector has outgrown maxSize.
func (w *WindowedModel[T]) Push(ts int64, row T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("models: marshal row %s: %w", w.table, err)
	}
	if err := w.db.Put(w.table, nanoKey(ts), data); err != nil {
		return fmt.Errorf("models: push %s: %w", w.table, err)
	}
	w.rows = append(w.rows, types.TimedValue[T]{Ts: ts, Value: row})
	return w.maybeDrainLocked()
}

func (w *WindowedModel[T]) maybeDrainLocked() error {
	if len(w.rows) <= w.maxSize {
		return nil
	}
	drainCount := w.maxSize - w.windowSize
	from := w.rows[0].Ts
	// DeleteRange's `to` bound is exclusive; use the key one nanosecond
	// past the last drained row so it is included.
	to := w.rows[drainCount-1].Ts + 1
	if err := w.db.DeleteRange(w.table, nanoKey(from), nanoKey(to)); err != nil {
		return fmt.Errorf("models: drain %s: %w", w.table, err)
	}
	w.rows = w.rows[drainCount:]
	return nil
}

// Window returns the most recent windowSize items in chronological order.
func (w *WindowedModel[T]) Window() []types.TimedValue[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.rows) <= w.windowSize {
		out := make([]types.TimedValue[T], len(w.rows))
		copy(out, w.rows)
		return out
	}
	tail := w.rows[len(w.rows)-w.windowSize:]
	out := make([]types.TimedValue[T], len(tail))
	copy(out, tail)
	return out
}

func (w *WindowedModel[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

func (w *WindowedModel[T]) IsEmpty() bool { return w.Len() == 0 }

// IsFilled reports whether the window has accumulated more than
// windowSize rows; the reducer/indicator layered above must treat an
// unfilled window as a no-op.
func (w *WindowedModel[T]) IsFilled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows) > w.windowSize
}

// Load reconstitutes the vector from storage, sorted by key.
func (w *WindowedModel[T]) Load() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	kvs, err := w.db.GetAll(w.table)
	if err != nil {
		return fmt.Errorf("models: load %s: %w", w.table, err)
	}
	rows := make([]types.TimedValue[T], 0, len(kvs))
	for _, kv := range kvs {
		ts, err := parseNanoKey(kv.Key)
		if err != nil {
			return fmt.Errorf("models: parse key in %s: %w", w.table, err)
		}
		var v T
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			return fmt.Errorf("models: unmarshal row in %s: %w", w.table, err)
		}
		rows = append(rows, types.TimedValue[T]{Ts: ts, Value: v})
	}
	// GetAll/GetRange already return byte-sorted keys, and our keys are
	// zero-padded so byte order matches numeric order.
	w.rows = rows
	w.isLoaded = true
	return nil
}

func (w *WindowedModel[T]) IsLoaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isLoaded
}

// Wipe deletes every row in the table and clears the in-memory vector.
func (w *WindowedModel[T]) Wipe() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	from := nanoKey(0)
	to := nanoKey(time.Now().UnixNano() + 1)
	if err := w.db.DeleteRange(w.table, from, to); err != nil {
		return fmt.Errorf("models: wipe %s: %w", w.table, err)
	}
	w.rows = nil
	return nil
}
