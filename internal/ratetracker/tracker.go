// Package ratetracker computes a rolling rate from a monotonically
// increasing counter, in the shape of streamfold-otel-loadgen's
// internal/stats package (a last-report value/time pair updated on each
// report call) but narrowed to the single counter this backend needs:
// total spans ingested.
package ratetracker

import (
	"sync"
	"time"
)

// Tracker turns successive (timestamp, cumulative total) observations into
// a rate. The first observation only seeds the baseline and reports zero,
// matching statDomain.report()'s initialization branch.
type Tracker struct {
	mu          sync.Mutex
	lastValue   uint64
	lastTime    time.Time
	initialized bool
}

func New() *Tracker {
	return &Tracker{}
}

// Rate reports the per-second delta of total since the previous call.
func (t *Tracker) Rate(now time.Time, total uint64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		t.initialized = true
		t.lastValue = total
		t.lastTime = now
		return 0
	}

	elapsed := now.Sub(t.lastTime).Seconds()
	delta := total - t.lastValue

	t.lastValue = total
	t.lastTime = now

	if elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}
