package metrics

import (
	"fmt"
	"log/slog"
	"sync"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
)

// Metric names.
const (
	StartTimeMs = "Camera.StartTimeMs"
	StopTimeMs  = "Camera.StopTimeMs"
)

const (
	histogramMin     = 1
	histogramMax     = 10000
	histogramBuckets = 50
)

// Summary is the state of one metric.
type Summary struct {
	Histogram Snapshot
	Mean      float64 // over the recent window
	P95       float64
	Max       float64
}

// Recorder implements camerasession.MetricsSink. Safe for concurrent use.
type Recorder struct {
	logger *slog.Logger

	mu      sync.Mutex
	hists   map[string]*Histogram
	windows map[string]*LatencyWindow
}

var _ camerasession.MetricsSink = (*Recorder)(nil)

// NewRecorder creates a recorder with the start and stop histograms.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		logger:  logger,
		hists:   make(map[string]*Histogram),
		windows: make(map[string]*LatencyWindow),
	}
	for _, name := range []string{StartTimeMs, StopTimeMs} {
		h, err := NewHistogram(name, histogramMin, histogramMax, histogramBuckets)
		if err != nil {
			// constants are valid
			panic(fmt.Sprintf("metrics: %v", err))
		}
		r.hists[name] = h
		r.windows[name] = &LatencyWindow{}
	}
	return r
}

// AddStartTimeSample implements camerasession.MetricsSink.
func (r *Recorder) AddStartTimeSample(ms int) { r.add(StartTimeMs, ms) }

// AddStopTimeSample implements camerasession.MetricsSink.
func (r *Recorder) AddStopTimeSample(ms int) { r.add(StopTimeMs, ms) }

func (r *Recorder) add(name string, ms int) {
	r.mu.Lock()
	r.hists[name].Add(ms)
	r.windows[name].AddSample(float64(ms))
	r.mu.Unlock()

	r.logger.Debug("metrics: sample recorded", "metric", name, "ms", ms)
}

// Summary returns the state of metric name.
func (r *Recorder) Summary(name string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hists[name]
	if !ok {
		return Summary{}, false
	}
	mean, p95, max := r.windows[name].GetStats()
	return Summary{Histogram: h.Snapshot(), Mean: mean, P95: p95, Max: max}, true
}

// Summaries returns the start and stop summaries in that order.
func (r *Recorder) Summaries() []Summary {
	out := make([]Summary, 0, 2)
	for _, name := range []string{StartTimeMs, StopTimeMs} {
		s, _ := r.Summary(name)
		out = append(out, s)
	}
	return out
}
