package feed

import (
	"sync"
	"time"
)

// sample is one observed reference price point.
type sample struct {
	price float64
	at    time.Time
}

// History keeps a rolling window of reference price samples so momentum
// signals can be computed over short lookbacks. Samples older than the
// retention horizon are dropped on every append.
type History struct {
	mu        sync.RWMutex
	samples   []sample
	retention time.Duration
}

// NewHistory creates a history that retains samples for the given horizon.
func NewHistory(retention time.Duration) *History {
	return &History{retention: retention}
}

// Append records a price observation and evicts expired samples.
func (h *History) Append(price float64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, sample{price: price, at: at})

	cutoff := at.Add(-h.retention)
	i := 0
	for i < len(h.samples) && h.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.samples = append(h.samples[:0], h.samples[i:]...)
	}
}

// At returns the oldest sample no older than ago before now. The bool is
// false when no sample covers that lookback yet.
func (h *History) At(now time.Time, ago time.Duration) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	target := now.Add(-ago)
	for _, s := range h.samples {
		if !s.at.Before(target) {
			return s.price, true
		}
	}
	return 0, false
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}
