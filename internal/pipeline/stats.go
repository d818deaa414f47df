package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/pitwall/internal/publish"
)

// Stats collects delivery latency samples and outcome counters for the
// status command. It keeps a bounded ring buffer of recent latency
// observations per stage and computes percentiles on demand.
//
// Thread-safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	download latencyBuffer
	publish  latencyBuffer

	attached int64
	linked   int64
	failed   int64
}

// NewStats creates a Stats with the given window size (maximum number of
// latency samples retained per stage).
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Stats{
		download: newLatencyBuffer(windowSize),
		publish:  newLatencyBuffer(windowSize),
	}
}

// RecordDownload records a clip download latency sample.
func (s *Stats) RecordDownload(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.download.add(d)
}

// RecordPublish records a Discord post latency sample.
func (s *Stats) RecordPublish(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish.add(d)
}

// RecordDelivered counts a successful delivery in the given publish mode.
func (s *Stats) RecordDelivered(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == publish.ModeAttachment {
		s.attached++
	} else {
		s.linked++
	}
}

// RecordFailed counts a delivery that could not be posted at all.
func (s *Stats) RecordFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// LatencyPercentiles holds p50 and p95 values for a stage.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// Snapshot is a point-in-time view of the delivery statistics.
type Snapshot struct {
	Download LatencyPercentiles
	Publish  LatencyPercentiles
	Attached int64
	Linked   int64
	Failed   int64
}

// Delivered returns the number of notifications that reached Discord.
func (s Snapshot) Delivered() int64 { return s.Attached + s.Linked }

// Snapshot returns a point-in-time view of all statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Download: s.download.percentiles(),
		Publish:  s.publish.percentiles(),
		Attached: s.attached,
		Linked:   s.linked,
		Failed:   s.failed,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, lb.data[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the value at p (0.0-1.0) from a sorted slice using
// nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
