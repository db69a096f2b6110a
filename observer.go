package camerasession

import (
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// CapturerObserver consumes the output of a session.
//
// All methods are invoked on the session loop with the token of the running
// task, which may be passed to Session.StopOn.
type CapturerObserver interface {
	// OnCapturerStarted reports whether the session reached streaming.
	OnCapturerStarted(tok looper.Token, success bool)

	// OnCapturerStopped is invoked once, when the session transitions to Stopped.
	OnCapturerStopped(tok looper.Token)

	// OnTextureFrameCaptured delivers one orientation-corrected frame.
	// The consumer must call FrameSource.ReturnTextureFrame when done with it.
	OnTextureFrameCaptured(tok looper.Token, width, height, textureID int, transform Matrix, rotation int, timestampNs int64)
}

// EventsHandler receives operational notifications (not frame data).
// Like CapturerObserver it is invoked on the session loop.
type EventsHandler interface {
	OnCameraError(tok looper.Token, message string)
	OnCameraFreezed(tok looper.Token, message string)
	OnCameraOpening(tok looper.Token, cameraID string)
	OnFirstFrameAvailable(tok looper.Token)
	OnCameraClosed(tok looper.Token)
}

// CreateSessionCallback is the one-shot completion sink of Create.
// Exactly one of its methods is invoked, exactly once.
type CreateSessionCallback interface {
	OnDone(session *Session)
	OnFailure(err error)
}

// MetricsSink records start and stop latency samples in milliseconds.
type MetricsSink interface {
	AddStartTimeSample(ms int)
	AddStopTimeSample(ms int)
}

// DisplayRotation reports the current rotation of the host display,
// one of 0, 90, 180 or 270.
type DisplayRotation interface {
	CurrentRotation() int
}

// StaticRotation is a DisplayRotation that never changes.
type StaticRotation int

// CurrentRotation returns r.
func (r StaticRotation) CurrentRotation() int { return int(r) }

// AtomicRotation is a DisplayRotation that can be updated from any goroutine.
type AtomicRotation struct {
	v atomic.Int32
}

// Set updates the rotation; values are normalized to [0,360).
func (r *AtomicRotation) Set(degrees int) {
	r.v.Store(int32(normalizeDegrees(degrees)))
}

// CurrentRotation returns the last value passed to Set.
func (r *AtomicRotation) CurrentRotation() int { return int(r.v.Load()) }

type nopEvents struct{}

func (nopEvents) OnCameraError(looper.Token, string)   {}
func (nopEvents) OnCameraFreezed(looper.Token, string) {}
func (nopEvents) OnCameraOpening(looper.Token, string) {}
func (nopEvents) OnFirstFrameAvailable(looper.Token)   {}
func (nopEvents) OnCameraClosed(looper.Token)          {}

type nopMetrics struct{}

func (nopMetrics) AddStartTimeSample(int) {}
func (nopMetrics) AddStopTimeSample(int)  {}
