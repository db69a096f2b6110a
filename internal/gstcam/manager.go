// Package gstcam is a camera subsystem backed by GStreamer V4L2 capture.
//
// Opening a device builds a v4l2src pipeline and moves it to READY, which
// acquires the device node. Configuring a capture session connects the
// pipeline's appsink to a Surface of the FrameSource; arming the repeating
// request sets the frame rate caps and moves the pipeline to PLAYING. Bus
// errors are reported as device errors, bus warnings as capture failures.
//
// Every callback is posted on the looper.Poster the session supplies.
package gstcam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// openErrorTimeout bounds the wait for the bus message explaining a failed open.
const openErrorTimeout = 500 * time.Millisecond

// Prober describes capture devices.
type Prober interface {
	Describe(id string) (camerasession.DeviceDescriptor, error)
}

// Manager implements camerasession.CameraManager on top of GStreamer.
type Manager struct {
	prober   Prober
	logger   *slog.Logger
	counters ErrorCounters
}

var _ camerasession.CameraManager = (*Manager)(nil)

// NewManager creates a manager using prober for device characteristics.
func NewManager(prober Prober, logger *slog.Logger) (*Manager, error) {
	if prober == nil {
		return nil, fmt.Errorf("gstcam: prober is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{prober: prober, logger: logger}, nil
}

// ErrorCounts returns pipeline error counters by category.
func (m *Manager) ErrorCounts() map[string]uint64 {
	return m.counters.Snapshot()
}

// Characteristics implements camerasession.CameraManager.
func (m *Manager) Characteristics(id string) (camerasession.DeviceDescriptor, error) {
	desc, err := m.prober.Describe(id)
	if err != nil {
		return camerasession.DeviceDescriptor{}, fmt.Errorf("gstcam: describe %s: %w: %w", id, camerasession.ErrAccessDenied, err)
	}
	return desc, nil
}

// OpenCamera implements camerasession.CameraManager. The pipeline is built
// and the device acquired on a separate goroutine.
func (m *Manager) OpenCamera(id string, cb camerasession.DeviceStateCallback, poster looper.Poster) error {
	if cb == nil || poster == nil {
		return fmt.Errorf("gstcam: callback and poster are required")
	}
	d := &Device{
		id:     id,
		m:      m,
		cb:     cb,
		poster: poster,
		logger: m.logger.With("device", id),
	}
	go d.open()
	return nil
}

// Device is an open V4L2 device.
type Device struct {
	id     string
	m      *Manager
	cb     camerasession.DeviceStateCallback
	poster looper.Poster
	logger *slog.Logger

	mu       sync.Mutex
	elements *PipelineElements
	closed   bool
}

var _ camerasession.CameraDevice = (*Device)(nil)

func (d *Device) open() {
	elements, err := CreatePipeline(PipelineConfig{Device: d.id})
	if err != nil {
		d.logger.Error("gstcam: failed to create pipeline", "error", err)
		d.m.counters.Add(ErrCategoryUnknown)
		d.reportFatal(ErrCategoryUnknown)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		DestroyPipeline(elements)
		return
	}
	d.elements = elements
	d.mu.Unlock()

	if err := elements.Pipeline.SetState(gst.StateReady); err != nil {
		category, message := popError(elements.Pipeline, openErrorTimeout)
		if message == "" {
			category = Classify(err.Error(), "")
		}
		d.m.counters.Add(category)
		d.logger.Error("gstcam: failed to open device",
			"error", err, "bus_error", message, "category", category.String())
		d.reportFatal(category)
		return
	}

	d.logger.Info("gstcam: device opened")
	d.poster.Post(func(tok looper.Token) {
		d.cb.OnOpened(tok, d)
	})
}

// reportFatal posts the device callback matching category.
func (d *Device) reportFatal(category ErrorCategory) {
	code, disconnected := category.DeviceError()
	d.poster.Post(func(tok looper.Token) {
		if disconnected {
			d.cb.OnDisconnected(tok, d)
			return
		}
		d.cb.OnError(tok, d, code)
	})
}

// ID implements camerasession.CameraDevice.
func (d *Device) ID() string { return d.id }

// CreateCaptureSession implements camerasession.CameraDevice. Exactly one
// target, created by a gstcam FrameSource, is supported.
func (d *Device) CreateCaptureSession(targets []camerasession.Surface, cb camerasession.SessionStateCallback, poster looper.Poster) error {
	if len(targets) != 1 {
		return fmt.Errorf("gstcam: expected 1 target, got %d", len(targets))
	}
	surface, ok := targets[0].(*Surface)
	if !ok {
		return fmt.Errorf("gstcam: unsupported target %T", targets[0])
	}

	d.mu.Lock()
	elements, closed := d.elements, d.closed
	d.mu.Unlock()
	if closed || elements == nil {
		return fmt.Errorf("gstcam: device %s is not open", d.id)
	}

	cs := &CaptureSession{device: d, surface: surface, elements: elements}
	go func() {
		err := UpdateCaps(elements, surface.width, surface.height, 0)
		if err == nil {
			surface.attach(elements.AppSink)
			err = elements.Pipeline.SetState(gst.StatePaused)
		}
		if err != nil {
			d.logger.Error("gstcam: failed to configure capture session", "error", err)
			poster.Post(func(tok looper.Token) { cb.OnConfigureFailed(tok, cs) })
			return
		}
		d.logger.Debug("gstcam: capture session configured",
			"width", surface.width, "height", surface.height)
		poster.Post(func(tok looper.Token) { cb.OnConfigured(tok, cs) })
	}()
	return nil
}

// Close implements camerasession.CameraDevice. OnClosed follows
// asynchronously. Idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	elements := d.elements
	d.elements = nil
	d.mu.Unlock()

	if err := DestroyPipeline(elements); err != nil {
		d.logger.Warn("gstcam: failed to destroy pipeline", "error", err)
	}
	d.poster.Post(func(tok looper.Token) {
		d.cb.OnClosed(tok, d)
	})
}

// CaptureSession is a configured pipeline.
type CaptureSession struct {
	device   *Device
	surface  *Surface
	elements *PipelineElements

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

var _ camerasession.CaptureSession = (*CaptureSession)(nil)

// SetRepeatingRequest implements camerasession.CaptureSession. The request's
// target fps range is in whole frames per second; its max becomes the caps
// frame rate.
func (cs *CaptureSession) SetRepeatingRequest(req camerasession.CaptureRequest, cb camerasession.CaptureCallback, poster looper.Poster) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return fmt.Errorf("gstcam: capture session closed")
	}
	if cs.cancel != nil {
		return fmt.Errorf("gstcam: repeating request already set")
	}

	fps := req.AETargetFpsRange.Max
	if err := UpdateCaps(cs.elements, cs.surface.width, cs.surface.height, fps); err != nil {
		return fmt.Errorf("gstcam: failed to set caps: %w", err)
	}
	if err := cs.elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstcam: failed to start pipeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs.cancel = cancel
	cs.done = make(chan struct{})

	d := cs.device
	handlers := BusHandlers{
		OnFatal: func(category ErrorCategory, message string) {
			d.reportFatal(category)
		},
		OnWarning: func(seq int64, message string) {
			poster.Post(func(tok looper.Token) {
				cb.OnCaptureFailed(tok, camerasession.CaptureFailure{FrameNumber: seq, Reason: message})
			})
		},
	}
	go func() {
		defer close(cs.done)
		MonitorPipelineBus(ctx, cs.elements.Pipeline, handlers, &d.m.counters)
	}()

	d.logger.Info("gstcam: streaming",
		"width", cs.surface.width, "height", cs.surface.height, "fps", fps)
	return nil
}

// Close implements camerasession.CaptureSession. It stops streaming; the
// device stays open until Device.Close. Idempotent.
func (cs *CaptureSession) Close() {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return
	}
	cs.closed = true
	cancel, done := cs.cancel, cs.done
	cs.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if err := cs.elements.Pipeline.SetState(gst.StateReady); err != nil {
		cs.device.logger.Warn("gstcam: failed to stop streaming", "error", err)
	}
}
