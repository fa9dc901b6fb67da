package models

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-engine/internal/storage"
)

func TestPersistentModelUpdateAndReload(t *testing.T) {
	db := storage.NewMemoryStore()
	m, err := NewPersistentModel[int](db, "ema/BTC_USDT", nil)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	t0 := time.Unix(0, 1000)
	if err := m.Update(t0, func(cur int) int { return cur + 1 }); err != nil {
		t.Fatalf("update: %v", err)
	}
	val, ok := m.Value()
	if !ok || val != 1 {
		t.Fatalf("value = %v, %v; want 1, true", val, ok)
	}

	reloaded, err := NewPersistentModel[int](db, "ema/BTC_USDT", nil)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if err := reloaded.TryLoad(); err != nil {
		t.Fatalf("try load: %v", err)
	}
	val, ok = reloaded.Value()
	if !ok || val != 1 {
		t.Fatalf("reloaded value = %v, %v; want 1, true", val, ok)
	}
	at, ok := reloaded.LastModelTime()
	if !ok || !at.Equal(t0) {
		t.Fatalf("reloaded at = %v, %v; want %v, true", at, ok, t0)
	}
}

func TestPersistentModelTryLoadIsIdempotent(t *testing.T) {
	db := storage.NewMemoryStore()
	m, err := NewPersistentModel[string](db, "k", nil)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if err := m.TryLoad(); err != nil {
		t.Fatalf("try load: %v", err)
	}
	if !m.IsLoaded() {
		t.Fatalf("expected loaded after first TryLoad with no stored value")
	}
	m.SetLastModel("manual", time.Now())
	if err := m.TryLoad(); err != nil {
		t.Fatalf("try load: %v", err)
	}
	val, ok := m.Value()
	if !ok || val != "manual" {
		t.Fatalf("second TryLoad overwrote in-memory value: got %v, %v", val, ok)
	}
}

func TestPersistentModelWipe(t *testing.T) {
	db := storage.NewMemoryStore()
	m, err := NewPersistentModel[int](db, "k", nil)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if err := m.Update(time.Now(), func(int) int { return 5 }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.Wipe(); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if m.HasModel() {
		t.Fatalf("expected no model after wipe")
	}
}
