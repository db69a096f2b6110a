package gstcam

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// Frame is the pixel data behind a delivered texture id.
type Frame struct {
	TextureID int
	Data      []byte // RGBA
	Width     int
	Height    int
	Timestamp time.Time
	TraceID   string
}

// FrameSource turns appsink samples into frame notifications.
//
// It holds a single frame slot: while a delivered frame has not been
// returned, new samples are dropped.
type FrameSource struct {
	logger *slog.Logger

	mu       sync.Mutex
	listener camerasession.FrameListener
	poster   looper.Poster
	current  *Frame
	nextID   int

	received atomic.Uint64
	dropped  atomic.Uint64
}

var _ camerasession.FrameSource = (*FrameSource)(nil)

// NewFrameSource creates an idle frame source.
func NewFrameSource(logger *slog.Logger) *FrameSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameSource{logger: logger}
}

// Surface is the stream target handed to the session. The capture session
// connects its appsink to the surface.
type Surface struct {
	source   *FrameSource
	width    int
	height   int
	released atomic.Bool
}

// Release implements camerasession.Surface.
func (s *Surface) Release() {
	if s.released.CompareAndSwap(false, true) {
		slog.Debug("gstcam: surface released", "width", s.width, "height", s.height)
	}
}

// attach routes appsink samples into the surface's frame source.
func (s *Surface) attach(sink *app.Sink) {
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(sink)
		},
	})
}

// onNewSample pulls the sample and copies its pixels (GStreamer reuses the
// buffer). A bad sample is skipped instead of failing the stream.
func (s *Surface) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstcam: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstcam: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstcam: empty buffer received")
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	if s.released.Load() {
		return gst.FlowOK
	}
	s.source.deliver(frameData, s.width, s.height, time.Now())
	return gst.FlowOK
}

// CreateSurface implements camerasession.FrameSource.
func (f *FrameSource) CreateSurface(width, height int) (camerasession.Surface, error) {
	return &Surface{source: f, width: width, height: height}, nil
}

// StartListening implements camerasession.FrameSource.
func (f *FrameSource) StartListening(l camerasession.FrameListener, poster looper.Poster) {
	f.mu.Lock()
	f.listener = l
	f.poster = poster
	f.mu.Unlock()
}

// StopListening implements camerasession.FrameSource.
func (f *FrameSource) StopListening() {
	f.mu.Lock()
	f.listener = nil
	f.poster = nil
	f.mu.Unlock()
}

// ReturnTextureFrame implements camerasession.FrameSource.
func (f *FrameSource) ReturnTextureFrame() {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
}

// IsTextureInUse implements camerasession.FrameSource.
func (f *FrameSource) IsTextureInUse() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current != nil
}

// Current returns the frame behind the last delivered texture id, if it has
// not been returned yet.
func (f *FrameSource) Current() (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return Frame{}, false
	}
	return *f.current, true
}

// Counters returns the number of received and dropped samples.
func (f *FrameSource) Counters() (received, dropped uint64) {
	return f.received.Load(), f.dropped.Load()
}

func (f *FrameSource) deliver(data []byte, width, height int, ts time.Time) {
	f.received.Add(1)

	f.mu.Lock()
	if f.listener == nil || f.current != nil {
		f.mu.Unlock()
		f.dropped.Add(1)
		return
	}
	f.nextID++
	frame := &Frame{
		TextureID: f.nextID,
		Data:      data,
		Width:     width,
		Height:    height,
		Timestamp: ts,
		TraceID:   uuid.New().String(),
	}
	f.current = frame
	l, poster := f.listener, f.poster
	f.mu.Unlock()

	tf := camerasession.TextureFrame{
		TextureID:   frame.TextureID,
		Transform:   camerasession.IdentityMatrix(),
		TimestampNs: ts.UnixNano(),
	}
	if !poster.Post(func(tok looper.Token) { l.OnTextureFrameAvailable(tok, tf) }) {
		f.ReturnTextureFrame()
		f.dropped.Add(1)
		return
	}

	f.logger.Debug("gstcam: frame posted",
		"texture_id", frame.TextureID,
		"size_bytes", len(data),
		"trace_id", frame.TraceID,
	)
}
