package models

import (
	"sync"
	"time"
)

// Sampler gates model updates to a fixed frequency independent of the
// rate at which market events arrive.
type Sampler struct {
	mu       sync.Mutex
	freq     time.Duration
	lastTime time.Time
}

// NewSampler creates a sampler with sample frequency freq. The gate
// starts at the zero time, so the first call with any non-zero
// eventTime admits.
func NewSampler(freq time.Duration) *Sampler {
	return &Sampler{freq: freq}
}

// Sample returns true iff eventTime >= lastSampleTime + freq, advancing
// lastSampleTime to eventTime on true.
func (s *Sampler) Sample(eventTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !eventTime.Before(s.lastTime.Add(s.freq)) {
		s.lastTime = eventTime
		return true
	}
	return false
}
