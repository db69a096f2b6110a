package metrics

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"testing"
)

// TestLatencyWindow_Properties checks the window invariants: bounded growth,
// mean <= max, p95 <= max and zeros when empty.
func TestLatencyWindow_Properties(t *testing.T) {
	t.Run("bounded_growth", func(t *testing.T) {
		window := &LatencyWindow{}
		for i := 0; i < 500; i++ {
			window.AddSample(float64(i))

			if window.Count > len(window.Samples) {
				t.Fatalf("Count exceeded buffer size at i=%d: Count=%d", i, window.Count)
			}
			if window.Index < 0 || window.Index >= len(window.Samples) {
				t.Fatalf("Index out of bounds at i=%d: Index=%d", i, window.Index)
			}
		}
		if window.Count != len(window.Samples) {
			t.Errorf("Count = %d after overflow, want %d", window.Count, len(window.Samples))
		}
	})

	t.Run("mean_le_max", func(t *testing.T) {
		cases := map[string][]float64{
			"uniform":    {1, 1, 1, 1},
			"increasing": {1, 2, 3, 4, 5},
			"spike":      {1, 1, 100, 1, 1},
			"mixed":      {10.5, 20.3, 15.8, 30.2, 5.1},
		}
		for name, samples := range cases {
			t.Run(name, func(t *testing.T) {
				window := &LatencyWindow{}
				for _, s := range samples {
					window.AddSample(s)
				}
				mean, _, max := window.GetStats()
				if mean > max {
					t.Errorf("mean %.4f > max %.4f", mean, max)
				}
			})
		}
	})

	t.Run("p95_le_max", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		window := &LatencyWindow{}
		for i := 0; i < 250; i++ {
			window.AddSample(rng.Float64() * 1000)
			_, p95, max := window.GetStats()
			if p95 > max {
				t.Fatalf("p95 %.4f > max %.4f after %d samples", p95, max, i+1)
			}
		}
	})

	t.Run("empty_window_returns_zeros", func(t *testing.T) {
		mean, p95, max := (&LatencyWindow{}).GetStats()
		if mean != 0 || p95 != 0 || max != 0 {
			t.Errorf("got (%v, %v, %v), want zeros", mean, p95, max)
		}
	})

	t.Run("old_samples_evicted", func(t *testing.T) {
		window := &LatencyWindow{}
		for i := 0; i < len(window.Samples); i++ {
			window.AddSample(1)
		}
		for i := 0; i < len(window.Samples); i++ {
			window.AddSample(1000)
		}
		mean, _, _ := window.GetStats()
		if mean != 1000 {
			t.Errorf("mean = %v, want 1000 once the window rolled over", mean)
		}
	})
}

func TestLatencyWindow_P95(t *testing.T) {
	ascending := make([]float64, 20)
	for i := range ascending {
		ascending[i] = float64(i + 1)
	}
	skewed := make([]float64, 100)
	for i := range skewed {
		skewed[i] = 10
		if i >= 90 {
			skewed[i] = 100
		}
	}

	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"sorted_ascending", ascending, 19},
		{"uniform", []float64{50, 50, 50, 50}, 50},
		{"skewed", skewed, 100},
		{"single", []float64{42}, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := &LatencyWindow{}
			for _, s := range tt.samples {
				window.AddSample(s)
			}
			_, p95, _ := window.GetStats()
			if math.Abs(p95-tt.want) > 0.001 {
				t.Errorf("p95 = %v, want %v", p95, tt.want)
			}
		})
	}
}

func TestNewHistogram_Validation(t *testing.T) {
	tests := []struct {
		name          string
		min, max, cnt int
	}{
		{"zero min", 0, 100, 10},
		{"max not above min", 10, 10, 10},
		{"too few buckets", 1, 100, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHistogram("h", tt.min, tt.max, tt.cnt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHistogram_Bounds(t *testing.T) {
	h, err := NewHistogram("h", 1, 10000, 50)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	if len(h.bounds) != 50 || h.bounds[0] != 0 || h.bounds[1] != 1 || h.bounds[49] != 10000 {
		t.Fatalf("unexpected bounds %v", h.bounds)
	}
	for i := 1; i < len(h.bounds); i++ {
		if h.bounds[i] <= h.bounds[i-1] {
			t.Fatalf("bounds not strictly increasing at %d: %v", i, h.bounds)
		}
	}
}

func TestHistogram_Add(t *testing.T) {
	h, _ := NewHistogram("h", 1, 10000, 50)
	for _, s := range []int{0, -5, 1, 250, 250, 10000, 99999} {
		h.Add(s)
	}

	snap := h.Snapshot()
	if snap.Total != 7 {
		t.Fatalf("Total = %d, want 7", snap.Total)
	}

	byLower := make(map[int]uint64)
	for _, b := range snap.Buckets {
		byLower[b.Lower] = b.Count
	}
	if byLower[0] != 2 {
		t.Errorf("underflow = %d, want 2", byLower[0])
	}
	if byLower[1] != 1 {
		t.Errorf("bucket 1 = %d, want 1", byLower[1])
	}
	if byLower[10000] != 2 {
		t.Errorf("overflow = %d, want 2", byLower[10000])
	}
	if snap.String() == "" {
		t.Error("empty rendering")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.AddStartTimeSample(100 + i)
			r.AddStopTimeSample(5)
		}(i)
	}
	wg.Wait()

	start, ok := r.Summary(StartTimeMs)
	if !ok {
		t.Fatal("start summary missing")
	}
	if start.Histogram.Total != 8 || start.Max != 107 {
		t.Errorf("start summary = %+v", start)
	}

	stop, _ := r.Summary(StopTimeMs)
	if stop.Histogram.Total != 8 || stop.Mean != 5 {
		t.Errorf("stop summary = %+v", stop)
	}

	if _, ok := r.Summary("Camera.Unknown"); ok {
		t.Error("unknown metric reported")
	}
	if got := len(r.Summaries()); got != 2 {
		t.Errorf("Summaries() = %d entries, want 2", got)
	}
}
