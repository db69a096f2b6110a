// Package metrics records camera start and stop latencies.
//
// Recorder implements camerasession.MetricsSink. Each metric keeps a bounded
// exponential-bucket Histogram for the lifetime of the process and a
// LatencyWindow over the most recent samples for mean / p95 / max.
package metrics

import (
	"fmt"
	"math"
	"strings"
)

// Histogram counts samples in exponentially spaced buckets over [Min, Max].
// Samples below Min land in the underflow bucket (index 0), samples at or
// above Max in the overflow bucket (last index).
type Histogram struct {
	Name   string
	Min    int
	Max    int
	bounds []int // lower bound of each bucket
	counts []uint64
	sum    int64
	total  uint64
}

// NewHistogram creates a histogram with bucketCount buckets, including the
// underflow and overflow buckets.
func NewHistogram(name string, min, max, bucketCount int) (*Histogram, error) {
	if min < 1 {
		return nil, fmt.Errorf("metrics: histogram %s: min must be >= 1, got %d", name, min)
	}
	if max <= min {
		return nil, fmt.Errorf("metrics: histogram %s: max (%d) must be > min (%d)", name, max, min)
	}
	if bucketCount < 3 {
		return nil, fmt.Errorf("metrics: histogram %s: need at least 3 buckets, got %d", name, bucketCount)
	}
	return &Histogram{
		Name:   name,
		Min:    min,
		Max:    max,
		bounds: exponentialBounds(min, max, bucketCount),
		counts: make([]uint64, bucketCount),
	}, nil
}

// exponentialBounds returns bucketCount lower bounds: 0, min, ..., max.
// Interior bounds grow geometrically and are strictly increasing.
func exponentialBounds(min, max, bucketCount int) []int {
	bounds := make([]int, bucketCount)
	bounds[0] = 0
	bounds[1] = min
	bounds[bucketCount-1] = max

	logMax := math.Log(float64(max))
	for i := 2; i < bucketCount-1; i++ {
		logCurrent := math.Log(float64(bounds[i-1]))
		step := (logMax - logCurrent) / float64(bucketCount-i)
		next := int(math.Round(math.Exp(logCurrent + step)))
		if next <= bounds[i-1] {
			next = bounds[i-1] + 1
		}
		bounds[i] = next
	}
	return bounds
}

// Add records one sample.
func (h *Histogram) Add(sample int) {
	h.counts[h.bucket(sample)]++
	h.sum += int64(sample)
	h.total++
}

func (h *Histogram) bucket(sample int) int {
	// Last bucket whose lower bound is <= sample.
	lo, hi := 0, len(h.bounds)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if h.bounds[mid] <= sample {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Bucket is one non-empty histogram bucket.
type Bucket struct {
	Lower int
	Count uint64
}

// Snapshot is a copy of a histogram's state.
type Snapshot struct {
	Name    string
	Total   uint64
	Mean    float64
	Buckets []Bucket
}

// Snapshot returns the non-empty buckets.
func (h *Histogram) Snapshot() Snapshot {
	snap := Snapshot{Name: h.Name, Total: h.total}
	if h.total > 0 {
		snap.Mean = float64(h.sum) / float64(h.total)
	}
	for i, c := range h.counts {
		if c > 0 {
			snap.Buckets = append(snap.Buckets, Bucket{Lower: h.bounds[i], Count: c})
		}
	}
	return snap
}

// String renders the snapshot as an ASCII bar chart.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d samples, mean %.1f\n", s.Name, s.Total, s.Mean)
	var peak uint64
	for _, bk := range s.Buckets {
		if bk.Count > peak {
			peak = bk.Count
		}
	}
	for _, bk := range s.Buckets {
		width := int(bk.Count * 40 / peak)
		if width == 0 {
			width = 1
		}
		fmt.Fprintf(&b, "  %6d  %-40s %d\n", bk.Lower, strings.Repeat("#", width), bk.Count)
	}
	return b.String()
}
