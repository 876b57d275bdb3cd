package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

const defaultSampleSize = 1000

// Histogram keeps the most recent latency samples in a ring buffer and
// derives percentiles from them. Count, total, min, and max cover every
// sample ever added, not just the retained ones.
type Histogram struct {
	mu          sync.RWMutex
	samples     []time.Duration
	next        int
	count       int64
	total       time.Duration
	min         time.Duration
	max         time.Duration
	lastUpdated time.Time
	clock       types.Clock
}

// NewHistogram creates a histogram retaining sampleSize samples
func NewHistogram(sampleSize int) *Histogram {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	return &Histogram{
		samples: make([]time.Duration, 0, sampleSize),
		clock:   types.SystemClock,
	}
}

// Add records one sample
func (h *Histogram) Add(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) < cap(h.samples) {
		h.samples = append(h.samples, d)
	} else {
		h.samples[h.next] = d
		h.next = (h.next + 1) % len(h.samples)
	}

	if h.count == 0 || d < h.min {
		h.min = d
	}
	if d > h.max {
		h.max = d
	}
	h.count++
	h.total += d
	h.lastUpdated = h.clock()
}

// Count returns the number of samples added since creation or Reset
func (h *Histogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// GetLatencyMetrics returns the summary including percentiles
func (h *Histogram) GetLatencyMetrics() types.LatencyMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return types.LatencyMetrics{LastUpdated: h.lastUpdated}
	}

	sorted := slices.Clone(h.samples)
	slices.Sort(sorted)

	return types.LatencyMetrics{
		TotalRequests:  h.count,
		TotalLatency:   h.total,
		AverageLatency: h.total / time.Duration(h.count),
		MinLatency:     h.min,
		MaxLatency:     h.max,
		P50Latency:     percentile(sorted, 50),
		P75Latency:     percentile(sorted, 75),
		P90Latency:     percentile(sorted, 90),
		P95Latency:     percentile(sorted, 95),
		P99Latency:     percentile(sorted, 99),
		LastUpdated:    h.lastUpdated,
	}
}

// Reset drops all samples
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = h.samples[:0]
	h.next = 0
	h.count = 0
	h.total = 0
	h.min = 0
	h.max = 0
	h.lastUpdated = time.Time{}
}

// percentile interpolates linearly between the closest ranks of sorted
func percentile(sorted []time.Duration, p int) time.Duration {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}

	rank := float64(p) / 100 * float64(n-1)
	lower := int(rank)
	if lower+1 >= n {
		return sorted[n-1]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + time.Duration(fraction*float64(sorted[lower+1]-sorted[lower]))
}
