package metrics

import "sort"

// LatencyWindow is a ring buffer over the most recent latency samples (ms).
// Not safe for concurrent use; Recorder guards it.
type LatencyWindow struct {
	Samples [100]float64
	Count   int // valid samples, <= len(Samples)
	Index   int // next write position
}

// AddSample records one sample, overwriting the oldest when full.
func (w *LatencyWindow) AddSample(ms float64) {
	w.Samples[w.Index] = ms
	w.Index = (w.Index + 1) % len(w.Samples)
	if w.Count < len(w.Samples) {
		w.Count++
	}
}

// GetStats returns mean, p95 and max of the window. All zero when empty.
func (w *LatencyWindow) GetStats() (mean, p95, max float64) {
	if w.Count == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, w.Count)
	copy(sorted, w.Samples[:w.Count])
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean = sum / float64(w.Count)
	p95 = sorted[int(float64(w.Count-1)*0.95)]
	max = sorted[w.Count-1]
	return mean, p95, max
}
