package models

import (
	"time"

	"github.com/atlas-desktop/trading-engine/internal/storage"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// ReduceFn folds a chronological window of T down to the next scalar M,
// given the previous scalar value.
type ReduceFn[T any, M any] func(previous M, window []types.TimedValue[T]) M

// PersistentReducer composes a windowed vector of T with a reducer that
// walks the window and folds it down to a persisted scalar M (variance,
// a covariance-derived beta, and similar statistics). It degrades to a
// no-op until the window is filled.
type PersistentReducer[T any, M any] struct {
	rows     *WindowedModel[T]
	scalar   *PersistentModel[M]
	reduceFn ReduceFn[T, M]
}

// NewPersistentReducer ensures both backing tables exist.
func NewPersistentReducer[T any, M any](db storage.Storage, id string, windowSize, maxSize int, reduceFn ReduceFn[T, M]) (*PersistentReducer[T, M], error) {
	rows, err := NewWindowedModel[T](db, id, windowSize, maxSize)
	if err != nil {
		return nil, err
	}
	scalar, err := NewPersistentModel[M](db, id, nil)
	if err != nil {
		return nil, err
	}
	return &PersistentReducer[T, M]{rows: rows, scalar: scalar, reduceFn: reduceFn}, nil
}

// Push appends row to the underlying window without recomputing the
// scalar; call Update afterward to fold it in.
func (r *PersistentReducer[T, M]) Push(ts int64, row T) error {
	return r.rows.Push(ts, row)
}

// Update folds the current window down to a new scalar and persists it.
// If the window is not yet filled, Update is a no-op.
func (r *PersistentReducer[T, M]) Update(eventTime time.Time) error {
	if !r.rows.IsFilled() {
		return nil
	}
	window := r.rows.Window()
	return r.scalar.Update(eventTime, func(prev M) M {
		return r.reduceFn(prev, window)
	})
}

func (r *PersistentReducer[T, M]) Value() (M, bool)          { return r.scalar.Value() }
func (r *PersistentReducer[T, M]) IsFilled() bool            { return r.rows.IsFilled() }
func (r *PersistentReducer[T, M]) Len() int                  { return r.rows.Len() }
func (r *PersistentReducer[T, M]) Window() []types.TimedValue[T] { return r.rows.Window() }

func (r *PersistentReducer[T, M]) TryLoad() error {
	if err := r.scalar.TryLoad(); err != nil {
		return err
	}
	return r.rows.Load()
}

func (r *PersistentReducer[T, M]) Wipe() error {
	if err := r.scalar.Wipe(); err != nil {
		return err
	}
	return r.rows.Wipe()
}
