package fakecam

import (
	"context"
	"sync"
	"time"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// Event log entries written by the recorders.
const (
	EventStartedTrue  = "observer.started:true"
	EventStartedFalse = "observer.started:false"
	EventStopped      = "observer.stopped"
	EventFrame        = "observer.frame"
	EventCameraError  = "events.error"
	EventFreeze       = "events.freeze"
	EventClosed       = "events.closed"
)

// CapturedFrame is one frame seen by an Observer.
type CapturedFrame struct {
	Width       int
	Height      int
	TextureID   int
	Transform   camerasession.Matrix
	Rotation    int
	TimestampNs int64
}

// Observer records what a session reports to its CapturerObserver.
// When Source is set every frame is returned to it after being recorded.
// StartHook, when set, runs on the session loop after a start is recorded.
type Observer struct {
	Log       *Log
	Source    *FrameSource
	StartHook func(tok looper.Token, success bool)

	mu      sync.Mutex
	started []bool
	stopped int
	frames  []CapturedFrame
}

// NewObserver returns an observer logging into log.
func NewObserver(log *Log, source *FrameSource) *Observer {
	return &Observer{Log: log, Source: source}
}

func (o *Observer) OnCapturerStarted(tok looper.Token, success bool) {
	if success {
		o.Log.add(EventStartedTrue)
	} else {
		o.Log.add(EventStartedFalse)
	}
	o.mu.Lock()
	o.started = append(o.started, success)
	o.mu.Unlock()
	if o.StartHook != nil {
		o.StartHook(tok, success)
	}
}

func (o *Observer) OnCapturerStopped(looper.Token) {
	o.Log.add(EventStopped)
	o.mu.Lock()
	o.stopped++
	o.mu.Unlock()
}

func (o *Observer) OnTextureFrameCaptured(_ looper.Token, width, height, textureID int, transform camerasession.Matrix, rotation int, timestampNs int64) {
	o.Log.add(EventFrame)
	o.mu.Lock()
	o.frames = append(o.frames, CapturedFrame{
		Width:       width,
		Height:      height,
		TextureID:   textureID,
		Transform:   transform,
		Rotation:    rotation,
		TimestampNs: timestampNs,
	})
	o.mu.Unlock()
	if o.Source != nil {
		o.Source.ReturnTextureFrame()
	}
}

// Started returns every OnCapturerStarted value in order.
func (o *Observer) Started() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.started...)
}

// StoppedCount returns how many times OnCapturerStopped fired.
func (o *Observer) StoppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

// Frames returns the delivered frames.
func (o *Observer) Frames() []CapturedFrame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CapturedFrame(nil), o.frames...)
}

// Events records EventsHandler notifications. ErrorHook, when set, runs on
// the session loop after a camera error is recorded.
type Events struct {
	Log       *Log
	ErrorHook func(tok looper.Token, message string)

	mu          sync.Mutex
	errors      []string
	freezes     []string
	opening     []string
	firstFrames int
	closed      int
}

// NewEvents returns an events recorder logging into log.
func NewEvents(log *Log) *Events {
	return &Events{Log: log}
}

func (e *Events) OnCameraError(tok looper.Token, message string) {
	e.Log.add(EventCameraError)
	e.mu.Lock()
	e.errors = append(e.errors, message)
	e.mu.Unlock()
	if e.ErrorHook != nil {
		e.ErrorHook(tok, message)
	}
}

func (e *Events) OnCameraFreezed(_ looper.Token, message string) {
	e.Log.add(EventFreeze)
	e.mu.Lock()
	e.freezes = append(e.freezes, message)
	e.mu.Unlock()
}

func (e *Events) OnCameraOpening(_ looper.Token, cameraID string) {
	e.mu.Lock()
	e.opening = append(e.opening, cameraID)
	e.mu.Unlock()
}

func (e *Events) OnFirstFrameAvailable(looper.Token) {
	e.mu.Lock()
	e.firstFrames++
	e.mu.Unlock()
}

func (e *Events) OnCameraClosed(looper.Token) {
	e.Log.add(EventClosed)
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
}

// Errors returns the reported camera errors.
func (e *Events) Errors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.errors...)
}

// Freezes returns the reported freeze messages.
func (e *Events) Freezes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.freezes...)
}

// Opening returns the camera ids reported as opening.
func (e *Events) Opening() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.opening...)
}

// FirstFrames returns how many first-frame notifications fired.
func (e *Events) FirstFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstFrames
}

// ClosedCount returns how many camera-closed notifications fired.
func (e *Events) ClosedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Result is the outcome delivered to a Callback.
type Result struct {
	Session *camerasession.Session
	Err     error
}

// Callback is a CreateSessionCallback that records every resolution.
type Callback struct {
	ch chan Result

	mu    sync.Mutex
	calls int
}

// NewCallback returns an unresolved callback.
func NewCallback() *Callback {
	return &Callback{ch: make(chan Result, 4)}
}

func (c *Callback) OnDone(s *camerasession.Session) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.ch <- Result{Session: s}
}

func (c *Callback) OnFailure(err error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.ch <- Result{Err: err}
}

// Wait returns the first resolution, or false after timeout.
func (c *Callback) Wait(timeout time.Duration) (Result, bool) {
	select {
	case r := <-c.ch:
		return r, true
	case <-time.After(timeout):
		return Result{}, false
	}
}

// Calls returns how many times the callback was resolved.
func (c *Callback) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Run emits frames at the given interval until ctx is done. Frames are
// skipped while the previous one has not been returned.
func (f *FrameSource) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if f.IsTextureInUse() {
				continue
			}
			f.Emit(camerasession.TextureFrame{
				Transform:   camerasession.IdentityMatrix(),
				TimestampNs: now.UnixNano(),
			})
		}
	}
}
