package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent duration samples and
// computes percentiles over them.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, maxSize)}
}

// Observe records a new duration, evicting the oldest once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

// Count returns the number of samples recorded, capped at the ring size.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.samples)
	}
	return l.next
}

// Percentile returns the percentile (0-100) duration, or zero with no
// samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	count := l.next
	if l.full {
		count = len(l.samples)
	}
	sorted := append([]time.Duration(nil), l.samples[:count]...)
	l.mu.RUnlock()

	if count == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	index := int((p / 100.0) * float64(count-1))
	return sorted[index]
}
