package models

import (
	"time"

	"github.com/atlas-desktop/trading-engine/internal/storage"
)

// Indicator is any stepwise indicator with next(input) -> output
// semantics (EMA, MACD, Bollinger bands, ...).
type Indicator[I any, O any] interface {
	Next(input I) O
}

// IndicatorFunc adapts a plain function into an Indicator.
type IndicatorFunc[I any, O any] func(input I) O

func (f IndicatorFunc[I, O]) Next(input I) O { return f(input) }

// IndicatorModel is a persistent wrapper around a stepwise indicator: it
// advances the indicator and persists the new output under a stable key
// on every update.
type IndicatorModel[I any, O any] struct {
	model     *PersistentModel[O]
	indicator Indicator[I, O]
}

// NewIndicatorModel ensures the backing key exists and wraps indicator.
func NewIndicatorModel[I any, O any](db storage.Storage, key string, indicator Indicator[I, O]) (*IndicatorModel[I, O], error) {
	pm, err := NewPersistentModel[O](db, key, nil)
	if err != nil {
		return nil, err
	}
	return &IndicatorModel[I, O]{model: pm, indicator: indicator}, nil
}

// Update advances the indicator with input, stamping and persisting the
// result under eventTime.
func (m *IndicatorModel[I, O]) Update(eventTime time.Time, input I) error {
	return m.model.Update(eventTime, func(_ O) O {
		return m.indicator.Next(input)
	})
}

func (m *IndicatorModel[I, O]) Value() (O, bool)            { return m.model.Value() }
func (m *IndicatorModel[I, O]) TryLoad() error               { return m.model.TryLoad() }
func (m *IndicatorModel[I, O]) Wipe() error                  { return m.model.Wipe() }
func (m *IndicatorModel[I, O]) LastModelTime() (time.Time, bool) { return m.model.LastModelTime() }
func (m *IndicatorModel[I, O]) HasModel() bool               { return m.model.HasModel() }
