package detect

import (
	"sync"
	"time"
)

const (
	// DefaultWindowSize is the trailing window the tracker keeps events in.
	DefaultWindowSize = 60 * time.Second
	// DefaultBurstMultiplier scales the baseline rate into the threshold.
	DefaultBurstMultiplier = 3.0

	// minWindowEvents is the number of in-window events required before the
	// threshold adapts; below it there is not enough signal.
	minWindowEvents = 10
	// fallbackThreshold is reported while the window is too sparse to adapt.
	fallbackThreshold = 2.0
)

type windowEntry struct {
	at   time.Time
	path string
}

// BurstTracker keeps a sliding window of recent file change events and
// derives an adaptive burst threshold from them. The threshold scales with
// baseline churn so a naturally busy host does not alert permanently while
// a quiet host stays sensitive to short bursts.
//
// The window is shared between the watcher goroutine and status readers;
// every access goes through one mutex.
type BurstTracker struct {
	windowSize time.Duration
	multiplier float64

	mu     sync.Mutex
	events []windowEntry
}

// NewBurstTracker creates a tracker. Non-positive arguments fall back to
// the defaults.
func NewBurstTracker(windowSize time.Duration, multiplier float64) *BurstTracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if multiplier <= 0 {
		multiplier = DefaultBurstMultiplier
	}
	return &BurstTracker{
		windowSize: windowSize,
		multiplier: multiplier,
	}
}

// Record appends an event for path and evicts entries older than the
// window, atomically.
func (t *BurstTracker) Record(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.events = append(t.events, windowEntry{at: now, path: path})

	cutoff := now.Add(-t.windowSize)
	kept := t.events[:0]
	for _, e := range t.events {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	t.events = kept
}

// Threshold returns the current adaptive burst threshold in events/second,
// clamped to [1.0, 10.0]. With fewer than ten in-window events it reports
// the fixed fallback value.
func (t *BurstTracker) Threshold() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thresholdLocked()
}

func (t *BurstTracker) thresholdLocked() float64 {
	if len(t.events) < minWindowEvents {
		return fallbackThreshold
	}

	baselineRate := float64(len(t.events)) / t.windowSize.Seconds()
	abt := baselineRate * t.multiplier

	if abt < 1.0 {
		return 1.0
	}
	if abt > 10.0 {
		return 10.0
	}
	return abt
}

// IsBurst reports whether the observed event rate strictly exceeds the
// adaptive threshold. The rate here is a second, coarser estimate computed
// under the same lock as the threshold read.
func (t *BurstTracker) IsBurst() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	windowSeconds := t.windowSize.Seconds()
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	currentRate := float64(len(t.events)) / windowSeconds

	return currentRate > t.thresholdLocked()
}

// RecentCount returns the number of events currently held in the window.
func (t *BurstTracker) RecentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// RecentPaths returns the paths of up to the n most recent window entries,
// oldest first.
func (t *BurstTracker) RecentPaths(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := len(t.events) - n
	if start < 0 {
		start = 0
	}

	paths := make([]string, 0, len(t.events)-start)
	for _, e := range t.events[start:] {
		paths = append(paths, e.path)
	}
	return paths
}
