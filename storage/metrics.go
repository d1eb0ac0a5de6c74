package storage

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Histogram keeps the most recent latency samples (microseconds) in a ring.
type Histogram struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewHistogram creates a histogram retaining up to maxSize samples.
func NewHistogram(maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Histogram{samples: make([]float64, maxSize)}
}

// Record adds a latency sample in microseconds, replacing the oldest one when full.
func (h *Histogram) Record(latencyUs float64) {
	h.mu.Lock()
	h.samples[h.next] = latencyUs
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.full = true
	}
	h.mu.Unlock()
}

func (h *Histogram) sortedCopy() []float64 {
	h.mu.Lock()
	n := h.next
	if h.full {
		n = len(h.samples)
	}
	out := slices.Clone(h.samples[:n])
	h.mu.Unlock()
	slices.Sort(out)
	return out
}

// Count returns the number of retained samples.
func (h *Histogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.samples)
	}
	return h.next
}

// Reset drops all samples.
func (h *Histogram) Reset() {
	h.mu.Lock()
	h.next = 0
	h.full = false
	h.mu.Unlock()
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// HistogramSnapshot holds percentile statistics of a histogram
type HistogramSnapshot struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

// Snapshot captures current histogram statistics
func (h *Histogram) Snapshot() HistogramSnapshot {
	s := h.sortedCopy()
	if len(s) == 0 {
		return HistogramSnapshot{}
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return HistogramSnapshot{
		Count: len(s),
		Min:   s[0],
		Max:   s[len(s)-1],
		Mean:  sum / float64(len(s)),
		P50:   percentile(s, 50),
		P95:   percentile(s, 95),
		P99:   percentile(s, 99),
	}
}

// Metrics tracks buffer manager activity. Counters are atomic so a collector
// may read them while a replay is running.
type Metrics struct {
	readRequests  atomic.Uint64
	writeRequests atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	ghostHits     atomic.Uint64
	evictions     atomic.Uint64
	writeBacks    atomic.Uint64
	forgotten     atomic.Uint64
	flushes       atomic.Uint64

	accessLatency *Histogram

	startTime time.Time
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		accessLatency: NewHistogram(10000),
		startTime:     time.Now(),
	}
}

func (m *Metrics) RecordRequest(op AccessType) {
	if op == AccessWrite {
		m.writeRequests.Add(1)
	} else {
		m.readRequests.Add(1)
	}
}

func (m *Metrics) RecordCacheHit() { m.cacheHits.Add(1) }
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Add(1) }
func (m *Metrics) RecordGhostHit() { m.ghostHits.Add(1) }
func (m *Metrics) RecordEviction() { m.evictions.Add(1) }
func (m *Metrics) RecordWriteBack() { m.writeBacks.Add(1) }
func (m *Metrics) RecordForgotten() { m.forgotten.Add(1) }
func (m *Metrics) RecordFlush() { m.flushes.Add(1) }
func (m *Metrics) AccessLatency() *Histogram { return m.accessLatency }

// RecordAccessLatency records the duration of one Read or Write call.
func (m *Metrics) RecordAccessLatency(d time.Duration) {
	m.accessLatency.Record(float64(d.Nanoseconds()) / 1000.0)
}

// GetCacheHitRate returns hits / (hits + misses) as a percentage. Ghost hits
// count as misses.
func (m *Metrics) GetCacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load() + m.ghostHits.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100.0
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	ReadRequests  uint64
	WriteRequests uint64
	CacheHits     uint64
	CacheMisses   uint64
	GhostHits     uint64
	Evictions     uint64
	WriteBacks    uint64
	Forgotten     uint64
	Flushes       uint64
	HitRate       float64
	Latency       HistogramSnapshot
	Uptime        time.Duration
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ReadRequests:  m.readRequests.Load(),
		WriteRequests: m.writeRequests.Load(),
		CacheHits:     m.cacheHits.Load(),
		CacheMisses:   m.cacheMisses.Load(),
		GhostHits:     m.ghostHits.Load(),
		Evictions:     m.evictions.Load(),
		WriteBacks:    m.writeBacks.Load(),
		Forgotten:     m.forgotten.Load(),
		Flushes:       m.flushes.Load(),
		HitRate:       m.GetCacheHitRate(),
		Latency:       m.accessLatency.Snapshot(),
		Uptime:        time.Since(m.startTime),
	}
}

// LogMetrics writes all counters as one structured log entry.
func (m *Metrics) LogMetrics(logger *zap.Logger) {
	s := m.Snapshot()
	logger.Info("Buffer manager metrics",
		zap.Duration("uptime", s.Uptime),
		zap.Uint64("read_requests", s.ReadRequests),
		zap.Uint64("write_requests", s.WriteRequests),
		zap.Uint64("hits", s.CacheHits),
		zap.Uint64("misses", s.CacheMisses),
		zap.Uint64("ghost_hits", s.GhostHits),
		zap.Float64("hit_rate_pct", s.HitRate),
		zap.Uint64("evictions", s.Evictions),
		zap.Uint64("write_backs", s.WriteBacks),
		zap.Uint64("forgotten", s.Forgotten),
		zap.Uint64("flushes", s.Flushes),
		zap.Float64("access_p50_us", s.Latency.P50),
		zap.Float64("access_p99_us", s.Latency.P99),
	)
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.readRequests.Store(0)
	m.writeRequests.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.ghostHits.Store(0)
	m.evictions.Store(0)
	m.writeBacks.Store(0)
	m.forgotten.Store(0)
	m.flushes.Store(0)
	m.accessLatency.Reset()
	m.startTime = time.Now()
}
