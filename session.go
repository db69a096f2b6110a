package camerasession

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// Options configures a Session.
type Options struct {
	// CameraID is the device to open (required)
	CameraID string
	// Width, Height and Framerate are the requested capture format (required).
	// Framerate is in whole frames per second.
	Width     int
	Height    int
	Framerate int

	// Manager is the camera subsystem (required)
	Manager CameraManager
	// FrameSource provides the stream target (required)
	FrameSource FrameSource
	// Observer consumes frames and start/stop notifications (required)
	Observer CapturerObserver
	// Callback is resolved once the session started or failed to (required)
	Callback CreateSessionCallback

	// Events receives operational notifications (optional)
	Events EventsHandler
	// Rotation reports the display rotation, queried per frame (optional, default 0)
	Rotation DisplayRotation
	// Metrics records start/stop latency (optional)
	Metrics MetricsSink
	// StatsPeriod is the frame-rate measurement period (optional, default 2s)
	StatsPeriod time.Duration
	// Logger is used for all session logging (optional, default slog.Default())
	Logger *slog.Logger
}

func (o Options) validate() error {
	if o.CameraID == "" {
		return fmt.Errorf("camera ID is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", o.Width, o.Height)
	}
	if o.Framerate <= 0 {
		return fmt.Errorf("invalid framerate %d", o.Framerate)
	}
	if o.Manager == nil {
		return fmt.Errorf("camera manager is required")
	}
	if o.FrameSource == nil {
		return fmt.Errorf("frame source is required")
	}
	if o.Observer == nil {
		return fmt.Errorf("capturer observer is required")
	}
	if o.Callback == nil {
		return fmt.Errorf("create session callback is required")
	}
	return nil
}

// Session drives one camera capture stream through open, configure,
// streaming and teardown.
//
// Every state change happens on the session loop. Callbacks from the camera
// subsystem and the frame source are posted on that loop and receive its
// token; invoking a loop-only entry point with an invalid token panics with
// a *ContractViolation.
//
// A Session starts exactly once, at construction, and never restarts.
type Session struct {
	id          string
	cameraID    string
	width       int
	height      int
	framerate   int
	statsPeriod time.Duration

	loop     *looper.Looper
	manager  CameraManager
	source   FrameSource
	observer CapturerObserver
	callback CreateSessionCallback
	events   EventsHandler
	rotation DisplayRotation
	metrics  MetricsSink
	logger   *slog.Logger

	constructedAt time.Time
	state         atomic.Int32
	// closed once the session is Stopped and the observer was told
	stopped chan struct{}

	// Loop-owned. A nil handle is either not acquired yet or already released;
	// state tells the two apart.
	descriptor     DeviceDescriptor
	negotiation    Negotiation
	device         CameraDevice
	surface        Surface
	captureSession CaptureSession
	stats          *cameraStatistics
	listening      bool
	firstFrameSeen bool
	sinkResolved   bool

	format          atomic.Pointer[CaptureFormat]
	framesDelivered atomic.Uint64
	framesDiscarded atomic.Uint64
	captureFailures atomic.Uint64
	startLatency    atomic.Int64
}

// Create constructs a session and posts its start sequence on loop.
//
// Create returns as soon as the start is scheduled. The outcome is reported
// through opts.Callback: OnDone once the repeating capture is armed, or
// OnFailure with a *SessionError if the session could not start.
func Create(loop *looper.Looper, opts Options) (*Session, error) {
	if loop == nil {
		return nil, fmt.Errorf("camera-session: loop is required")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("camera-session: invalid options: %w", err)
	}

	s := &Session{
		id:            uuid.New().String(),
		cameraID:      opts.CameraID,
		width:         opts.Width,
		height:        opts.Height,
		framerate:     opts.Framerate,
		statsPeriod:   opts.StatsPeriod,
		loop:          loop,
		manager:       opts.Manager,
		source:        opts.FrameSource,
		observer:      opts.Observer,
		callback:      opts.Callback,
		events:        opts.Events,
		rotation:      opts.Rotation,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		constructedAt: time.Now(),
		stopped:       make(chan struct{}),
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.rotation == nil {
		s.rotation = StaticRotation(0)
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session_id", s.id, "camera_id", s.cameraID)
	s.state.Store(int32(StateRunning))

	if !loop.Post(s.start) {
		return nil, fmt.Errorf("camera-session: loop %q: %w", loop.Name(), ErrLoopClosed)
	}
	return s, nil
}

// ID returns the unique id assigned at construction.
func (s *Session) ID() string { return s.id }

// CameraID returns the device the session was created for.
func (s *Session) CameraID() string { return s.cameraID }

// State returns the current state. Safe from any goroutine.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Format returns the negotiated format, or false before negotiation.
// Safe from any goroutine.
func (s *Session) Format() (CaptureFormat, bool) {
	f := s.format.Load()
	if f == nil {
		return CaptureFormat{}, false
	}
	return *f, true
}

// Stats returns a snapshot of the session. Safe from any goroutine.
func (s *Session) Stats() SessionStats {
	format, _ := s.Format()
	return SessionStats{
		SessionID:       s.id,
		CameraID:        s.cameraID,
		State:           s.State(),
		Format:          format,
		FramesDelivered: s.framesDelivered.Load(),
		FramesDiscarded: s.framesDiscarded.Load(),
		CaptureFailures: s.captureFailures.Load(),
		StartLatency:    time.Duration(s.startLatency.Load()),
		Uptime:          time.Since(s.constructedAt),
	}
}

func (s *Session) start(tok looper.Token) {
	mustOnLoop(s.loop, tok, "start")
	if s.State() != StateRunning {
		return
	}
	s.logger.Info("camera-session: starting",
		"width", s.width, "height", s.height, "framerate", s.framerate)

	desc, err := s.manager.Characteristics(s.cameraID)
	if err != nil {
		s.reportError(tok, newSessionError(ErrAccessDenied, "Failed to get camera characteristics.", err))
		return
	}
	s.descriptor = desc
	s.logger.Debug("camera-session: device characteristics",
		"orientation", desc.Orientation,
		"front_facing", desc.FrontFacing,
		"sizes", len(desc.SupportedSizes),
		"fps_ranges", len(desc.SupportedFpsRanges))

	n, err := NegotiateFormat(desc.SupportedSizes, desc.SupportedFpsRanges, s.width, s.height, s.framerate)
	if err != nil {
		s.reportError(tok, newSessionError(ErrNoSupportedFormat, "No supported capture formats.", err))
		return
	}
	s.negotiation = n
	format := n.Format
	s.format.Store(&format)
	s.logger.Info("camera-session: using capture format",
		"format", format.String(), "fps_unit_factor", n.UnitFactor)

	s.openCamera(tok)
}

func (s *Session) openCamera(tok looper.Token) {
	s.logger.Debug("camera-session: opening camera")
	s.events.OnCameraOpening(tok, s.cameraID)

	if err := s.manager.OpenCamera(s.cameraID, deviceStateHandler{s}, s.loop); err != nil {
		s.reportError(tok, newSessionError(ErrAccessDenied, "Failed to open camera:", err))
	}
}

// Stop stops the session. It may be called from any goroutine, including
// the session loop itself.
//
// Off the loop, Stop posts the stop step and returns once the session is
// Stopped and OnCapturerStopped has been delivered. On the loop (for example
// from an observer or events callback) it stops immediately, exactly like
// StopOn with the running task's token, and does not wait for anything.
// In both modes releasing the device and the capture session continues on
// the loop afterwards. Stop is a no-op on a stopped session.
func (s *Session) Stop() {
	if tok, ok := s.loop.Current(); ok {
		s.StopOn(tok)
		return
	}

	select {
	case <-s.stopped:
		s.logger.Debug("camera-session: stop ignored, already stopped")
		return
	default:
	}

	ran := make(chan struct{})
	posted := s.loop.Post(func(tok looper.Token) {
		defer close(ran)
		s.StopOn(tok)
	})
	if !posted {
		s.logger.Warn("camera-session: stop requested but session loop is gone")
		return
	}

	select {
	case <-ran:
	case <-s.stopped:
	}
}

// StopOn stops the session from the session loop. It transitions to Stopped,
// notifies the observer and schedules teardown without waiting for it.
// tok is the token of the running task, as received by every subsystem,
// observer and events callback. StopOn is a no-op on a stopped session.
func (s *Session) StopOn(tok looper.Token) {
	mustOnLoop(s.loop, tok, "StopOn")
	if s.State() == StateStopped {
		return
	}

	stopStart := time.Now()
	s.logger.Info("camera-session: stopping")
	s.state.Store(int32(StateStopped))
	s.observer.OnCapturerStopped(tok)
	close(s.stopped)

	s.loop.Post(func(tok looper.Token) {
		s.teardown(tok)
		elapsed := time.Since(stopStart)
		s.metrics.AddStopTimeSample(int(elapsed.Milliseconds()))
		s.logger.Info("camera-session: stopped", "stop_time_ms", elapsed.Milliseconds())
	})
}

// teardown releases every handle in reverse acquisition order. A session
// stopped before it started resolves its callback here.
func (s *Session) teardown(tok looper.Token) {
	mustOnLoop(s.loop, tok, "teardown")
	s.releaseHandles(tok)

	if !s.sinkResolved {
		s.resolveFailure(newSessionError(ErrStoppedBeforeStart, "Session stopped before start.", nil))
	}
}

func (s *Session) releaseHandles(tok looper.Token) {
	s.logger.Debug("camera-session: releasing resources")

	if s.listening {
		s.source.StopListening()
		s.listening = false
	}
	if s.stats != nil {
		s.stats.release(tok)
		s.stats = nil
	}
	if s.captureSession != nil {
		s.captureSession.Close()
		s.captureSession = nil
	}
	if s.surface != nil {
		s.surface.Release()
		s.surface = nil
	}
	if s.device != nil {
		s.device.Close()
		s.device = nil
	}
}

// reportError is the shared error path. Before a capture session exists the
// failure is a start failure: the session stops and the callback fails.
// Afterwards it is reported as a camera error and the session keeps running.
func (s *Session) reportError(tok looper.Token, err *SessionError) {
	mustOnLoop(s.loop, tok, "reportError")
	s.logger.Error("camera-session: error", "error", err)

	startFailure := s.captureSession == nil && s.State() != StateStopped
	if !startFailure {
		s.events.OnCameraError(tok, err.Error())
		return
	}

	s.state.Store(int32(StateStopped))
	close(s.stopped)
	s.releaseHandles(tok)
	s.resolveFailure(err)
	s.observer.OnCapturerStarted(tok, false)
}

func (s *Session) resolveDone() {
	if s.sinkResolved {
		return
	}
	s.sinkResolved = true
	s.callback.OnDone(s)
}

func (s *Session) resolveFailure(err error) {
	if s.sinkResolved {
		s.logger.Debug("camera-session: callback already resolved", "error", err)
		return
	}
	s.sinkResolved = true
	s.callback.OnFailure(err)
}

func mustOnLoop(l *looper.Looper, tok looper.Token, op string) {
	if err := l.Check(tok); err != nil {
		panic(&ContractViolation{Op: op, Err: err})
	}
}

// IsContractViolation reports whether v, typically a recovered panic value,
// is a thread contract violation.
func IsContractViolation(v any) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, ErrThreadContractViolation)
}
