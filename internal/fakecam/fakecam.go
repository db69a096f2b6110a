// Package fakecam is an in-memory camera subsystem.
//
// It delivers every callback asynchronously through the Poster it is given,
// like a real subsystem would, and records what the session did to it in a
// shared event log so tests can assert ordering.
package fakecam

import (
	"errors"
	"fmt"
	"sync"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// Event log entries.
const (
	EventOpen           = "device.open"
	EventDeviceClose    = "device.close"
	EventSessionCreate  = "session.create"
	EventSessionClose   = "session.close"
	EventRequestSet     = "request.set"
	EventSurfaceCreate  = "surface.create"
	EventSurfaceRelease = "surface.release"
	EventListenStart    = "listen.start"
	EventListenStop     = "listen.stop"
	EventFrameReturn    = "frame.return"
)

// ErrFake is returned by injected failures.
var ErrFake = errors.New("fakecam: injected failure")

// Log is an ordered, goroutine-safe event log.
type Log struct {
	mu     sync.Mutex
	events []string
}

func (l *Log) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (l *Log) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Count returns how many times e was recorded.
func (l *Log) Count(e string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.events {
		if v == e {
			n++
		}
	}
	return n
}

// Index returns the position of the first occurrence of e, or -1.
func (l *Log) Index(e string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.events {
		if v == e {
			return i
		}
	}
	return -1
}

// Manager is a fake CameraManager.
//
// Failure injection fields must be set before the session starts.
type Manager struct {
	Log *Log

	// CharacteristicsErr fails Characteristics
	CharacteristicsErr error
	// OpenErr fails OpenCamera synchronously
	OpenErr error
	// OpenErrorCode makes the open report OnError instead of OnOpened
	OpenErrorCode camerasession.DeviceErrorCode
	// HoldOpen delays OnOpened until CompleteOpen is called
	HoldOpen bool
	// CreateSessionErr fails CreateCaptureSession synchronously
	CreateSessionErr error
	// ConfigureFails reports OnConfigureFailed instead of OnConfigured
	ConfigureFails bool
	// HoldConfigure delays the configure outcome until CompleteConfigure or
	// FailConfigure is called
	HoldConfigure bool
	// RepeatingErr fails SetRepeatingRequest
	RepeatingErr error

	mu          sync.Mutex
	descriptors map[string]camerasession.DeviceDescriptor
	devices     []*Device
	pending     []func()
	configuring []func(fail bool)
}

// NewManager returns a manager exposing the given devices.
func NewManager(devices ...camerasession.DeviceDescriptor) *Manager {
	m := &Manager{
		Log:         &Log{},
		descriptors: make(map[string]camerasession.DeviceDescriptor),
	}
	for _, d := range devices {
		m.descriptors[d.ID] = d
	}
	return m
}

// Characteristics implements camerasession.CameraManager.
func (m *Manager) Characteristics(id string) (camerasession.DeviceDescriptor, error) {
	if m.CharacteristicsErr != nil {
		return camerasession.DeviceDescriptor{}, m.CharacteristicsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.descriptors[id]
	if !ok {
		return camerasession.DeviceDescriptor{}, fmt.Errorf("fakecam: unknown camera %q: %w", id, camerasession.ErrAccessDenied)
	}
	return d, nil
}

// OpenCamera implements camerasession.CameraManager.
func (m *Manager) OpenCamera(id string, cb camerasession.DeviceStateCallback, poster looper.Poster) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}
	if _, err := m.Characteristics(id); err != nil {
		return err
	}
	m.Log.add(EventOpen)

	dev := &Device{id: id, m: m, cb: cb, poster: poster}
	m.mu.Lock()
	m.devices = append(m.devices, dev)
	m.mu.Unlock()

	deliver := func() {
		poster.Post(func(tok looper.Token) {
			if m.OpenErrorCode != 0 {
				cb.OnError(tok, dev, m.OpenErrorCode)
				return
			}
			cb.OnOpened(tok, dev)
		})
	}
	if m.HoldOpen {
		m.mu.Lock()
		m.pending = append(m.pending, deliver)
		m.mu.Unlock()
		return nil
	}
	deliver()
	return nil
}

// CompleteOpen delivers opens held back by HoldOpen.
func (m *Manager) CompleteOpen() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, deliver := range pending {
		deliver()
	}
}

// CompleteConfigure reports OnConfigured for sessions held back by
// HoldConfigure.
func (m *Manager) CompleteConfigure() { m.releaseConfigure(false) }

// FailConfigure reports OnConfigureFailed for sessions held back by
// HoldConfigure.
func (m *Manager) FailConfigure() { m.releaseConfigure(true) }

func (m *Manager) releaseConfigure(fail bool) {
	m.mu.Lock()
	pending := m.configuring
	m.configuring = nil
	m.mu.Unlock()
	for _, deliver := range pending {
		deliver(fail)
	}
}

// Devices returns every device opened so far.
func (m *Manager) Devices() []*Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Device(nil), m.devices...)
}

// LastDevice returns the most recently opened device, or nil.
func (m *Manager) LastDevice() *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return nil
	}
	return m.devices[len(m.devices)-1]
}

// Device is a fake CameraDevice.
type Device struct {
	id     string
	m      *Manager
	cb     camerasession.DeviceStateCallback
	poster looper.Poster

	mu       sync.Mutex
	closed   bool
	sessions []*CaptureSession
}

// ID implements camerasession.CameraDevice.
func (d *Device) ID() string { return d.id }

// CreateCaptureSession implements camerasession.CameraDevice.
func (d *Device) CreateCaptureSession(targets []camerasession.Surface, cb camerasession.SessionStateCallback, poster looper.Poster) error {
	if d.m.CreateSessionErr != nil {
		return d.m.CreateSessionErr
	}
	d.m.Log.add(EventSessionCreate)

	cs := &CaptureSession{m: d.m, targets: targets}
	d.mu.Lock()
	d.sessions = append(d.sessions, cs)
	d.mu.Unlock()

	deliver := func(fail bool) {
		poster.Post(func(tok looper.Token) {
			if fail {
				cb.OnConfigureFailed(tok, cs)
				return
			}
			cb.OnConfigured(tok, cs)
		})
	}
	if d.m.HoldConfigure {
		d.m.mu.Lock()
		d.m.configuring = append(d.m.configuring, deliver)
		d.m.mu.Unlock()
		return nil
	}
	deliver(d.m.ConfigureFails)
	return nil
}

// Close implements camerasession.CameraDevice. OnClosed follows asynchronously.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.m.Log.add(EventDeviceClose)
	d.poster.Post(func(tok looper.Token) {
		d.cb.OnClosed(tok, d)
	})
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Disconnect simulates the device going away.
func (d *Device) Disconnect() {
	d.poster.Post(func(tok looper.Token) {
		d.cb.OnDisconnected(tok, d)
	})
}

// Fail simulates a device-level error.
func (d *Device) Fail(code camerasession.DeviceErrorCode) {
	d.poster.Post(func(tok looper.Token) {
		d.cb.OnError(tok, d, code)
	})
}

// LastSession returns the most recently created capture session, or nil.
func (d *Device) LastSession() *CaptureSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// CaptureSession is a fake CaptureSession.
type CaptureSession struct {
	m       *Manager
	targets []camerasession.Surface

	mu      sync.Mutex
	closed  bool
	request *camerasession.CaptureRequest
	cb      camerasession.CaptureCallback
	poster  looper.Poster
}

// SetRepeatingRequest implements camerasession.CaptureSession.
func (s *CaptureSession) SetRepeatingRequest(req camerasession.CaptureRequest, cb camerasession.CaptureCallback, poster looper.Poster) error {
	if s.m.RepeatingErr != nil {
		return s.m.RepeatingErr
	}
	s.m.Log.add(EventRequestSet)
	s.mu.Lock()
	s.request = &req
	s.cb = cb
	s.poster = poster
	s.mu.Unlock()
	return nil
}

// Close implements camerasession.CaptureSession.
func (s *CaptureSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.m.Log.add(EventSessionClose)
}

// Closed reports whether Close was called.
func (s *CaptureSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Request returns the armed repeating request, or nil.
func (s *CaptureSession) Request() *camerasession.CaptureRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// FailCapture simulates one failed capture request.
func (s *CaptureSession) FailCapture(f camerasession.CaptureFailure) {
	s.mu.Lock()
	cb, poster := s.cb, s.poster
	s.mu.Unlock()
	if cb == nil {
		return
	}
	poster.Post(func(tok looper.Token) {
		cb.OnCaptureFailed(tok, f)
	})
}
