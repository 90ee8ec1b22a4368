// Package traffic keeps sliding windows of request outcomes. Health status
// and the window gauges on /metrics both read from the default tracker.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Outcome classifies a finished request.
type Outcome int

const (
	Success Outcome = iota
	Error           // upstream failure, timeout
	Denied          // rate-limited (429)
	numOutcomes
)

// retention bounds memory; windows longer than this undercount.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(clockwork.NewRealClock())

// Record adds an outcome to the default tracker.
func Record(o Outcome) { defaultTracker.Record(o) }

// Count returns the number of o outcomes within window.
func Count(o Outcome, window time.Duration) int { return defaultTracker.Count(o, window) }

// RequestCount returns all outcomes within window, denials included.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// ErrorRate returns (errors, successes+errors) within window.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears the default tracker. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker maintains per-outcome timestamp windows.
type Tracker struct {
	clock clockwork.Clock

	mu    sync.Mutex
	times [numOutcomes][]time.Time
}

// NewTracker returns a tracker reading time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Record appends the current time to o's window.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= numOutcomes {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns the number of o outcomes not older than window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.clock.Now().Add(-window))
}

// RequestCount returns every outcome not older than window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	n := 0
	for o := range t.times {
		n += countSince(t.times[o], cutoff)
	}
	return n
}

// ErrorRate returns (errors, successes+errors) within window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	errors = countSince(t.times[Error], cutoff)
	return errors, errors + countSince(t.times[Success], cutoff)
}

// Reset drops all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for o := range t.times {
		t.times[o] = nil
	}
}

// countSince counts timestamps at or after cutoff. Slices are append-ordered.
func countSince(times []time.Time, cutoff time.Time) int {
	i := len(times)
	for i > 0 && !times[i-1].Before(cutoff) {
		i--
	}
	return len(times) - i
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o, times := range t.times {
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
