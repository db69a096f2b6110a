package camerasession

import (
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// CameraManager is the device directory of a camera subsystem.
//
// Implementations must guarantee:
//   - OpenCamera returns immediately; the outcome arrives later through the
//     DeviceStateCallback, posted on the given Poster
//   - every callback is delivered through the Poster, never inline
//   - an error from OpenCamera means no callback will follow
type CameraManager interface {
	// Characteristics returns the read-only descriptor of a device.
	//
	// Returns an error wrapping ErrAccessDenied if the device cannot be queried.
	Characteristics(id string) (DeviceDescriptor, error)

	// OpenCamera requests exclusive access to a device.
	//
	// On success exactly one of OnOpened, OnDisconnected or OnError follows,
	// and OnClosed follows once the returned device has been closed.
	OpenCamera(id string, cb DeviceStateCallback, poster looper.Poster) error
}

// CameraDevice is an open, exclusively held device handle.
type CameraDevice interface {
	// ID returns the device id the handle was opened for.
	ID() string

	// CreateCaptureSession asks the subsystem to configure a capture session
	// streaming into targets. The outcome arrives through cb.
	CreateCaptureSession(targets []Surface, cb SessionStateCallback, poster looper.Poster) error

	// Close releases the device. Idempotent.
	Close()
}

// CaptureSession is a configured capture session.
type CaptureSession interface {
	// SetRepeatingRequest arms req as a standing request. Individual request
	// failures are reported through cb; the request keeps repeating.
	SetRepeatingRequest(req CaptureRequest, cb CaptureCallback, poster looper.Poster) error

	// Close stops the repeating request and releases the session. Idempotent.
	Close()
}

// Surface is a stream target the subsystem writes frames into.
type Surface interface {
	// Release frees the target. Idempotent.
	Release()
}

// FrameListener receives raw frame notifications on the session loop.
type FrameListener interface {
	OnTextureFrameAvailable(tok looper.Token, frame TextureFrame)
}

// FrameSource provides the stream target and turns frames written into it
// into FrameListener notifications.
//
// A frame source holds at most one frame at a time: the frame reported to the
// listener stays in use until ReturnTextureFrame is called (either by the
// session when it discards a frame, or by the consumer of the observer).
type FrameSource interface {
	// CreateSurface creates a stream target of the given size.
	CreateSurface(width, height int) (Surface, error)

	// StartListening starts delivering frames to l, posted on poster.
	StartListening(l FrameListener, poster looper.Poster)

	// StopListening stops frame delivery. Frames already posted may still
	// reach the listener.
	StopListening()

	// ReturnTextureFrame hands the current frame back to the source.
	ReturnTextureFrame()

	// IsTextureInUse reports whether a delivered frame has not been returned yet.
	IsTextureInUse() bool
}

// DeviceStateCallback receives device lifecycle notifications.
// Every method runs on the session loop and receives the task token.
type DeviceStateCallback interface {
	OnOpened(tok looper.Token, device CameraDevice)
	OnDisconnected(tok looper.Token, device CameraDevice)
	OnError(tok looper.Token, device CameraDevice, code DeviceErrorCode)
	OnClosed(tok looper.Token, device CameraDevice)
}

// SessionStateCallback receives capture session configuration outcomes.
type SessionStateCallback interface {
	OnConfigured(tok looper.Token, session CaptureSession)
	OnConfigureFailed(tok looper.Token, session CaptureSession)
}

// CaptureCallback receives per-request capture failures.
type CaptureCallback interface {
	OnCaptureFailed(tok looper.Token, failure CaptureFailure)
}

// CaptureFailure describes one failed capture request.
type CaptureFailure struct {
	FrameNumber      int64
	Reason           string
	WasImageCaptured bool
}

// CaptureTemplate selects the subsystem's request preset.
type CaptureTemplate int

const (
	// TemplatePreview favours frame rate over quality
	TemplatePreview CaptureTemplate = iota + 1
	// TemplateRecord favours a stable frame rate for recording
	TemplateRecord
)

// AEMode is the auto-exposure mode of a capture request.
type AEMode int

const (
	AEModeOff AEMode = iota
	AEModeOn
)

// CaptureRequest is the repeating request armed on a configured session.
type CaptureRequest struct {
	Template CaptureTemplate
	// AETargetFpsRange is expressed in the subsystem's native unit
	AETargetFpsRange FramerateRange
	AEMode           AEMode
	AELock           bool
	Targets          []Surface
}
