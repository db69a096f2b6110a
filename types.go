package camerasession

import (
	"fmt"
	"time"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int
	Height int
}

// String returns the size as WIDTHxHEIGHT.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FramerateRange is an inclusive frame-rate range.
//
// Inside the session ranges are normalized to milli-fps (30 fps = 30000).
// Camera subsystems report native ranges in their own unit; the unit factor
// chosen during negotiation converts between the two.
type FramerateRange struct {
	Min int
	Max int
}

// String returns the range as [min:max].
func (r FramerateRange) String() string {
	return fmt.Sprintf("[%d:%d]", r.Min, r.Max)
}

// CaptureFormat is the size and frame-rate range a session streams at.
// It is selected once per session and never changes afterwards.
type CaptureFormat struct {
	Width     int
	Height    int
	Framerate FramerateRange // normalized (milli-fps)
}

// String returns a human-readable representation of the format
func (f CaptureFormat) String() string {
	return fmt.Sprintf("%dx%d@%s", f.Width, f.Height, f.Framerate)
}

// DeviceDescriptor is the read-only description of a camera device.
type DeviceDescriptor struct {
	// ID is the subsystem identifier of the device (e.g. "/dev/video0")
	ID string
	// Orientation is the sensor mounting orientation in degrees, [0,360)
	Orientation int
	// FrontFacing is true for user-facing cameras
	FrontFacing bool
	// SupportedSizes lists the sizes the device can stream
	SupportedSizes []Size
	// SupportedFpsRanges lists the frame-rate ranges in the subsystem's native unit
	SupportedFpsRanges []FramerateRange
}

// SessionState is the externally observable state of a session.
type SessionState int32

const (
	// StateRunning is the initial state, set at construction
	StateRunning SessionState = iota
	// StateStopped is terminal
	StateStopped
)

// String returns a human-readable string representation of the state
func (s SessionState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TextureFrame is a raw frame notification from the frame source.
type TextureFrame struct {
	// TextureID identifies the buffer holding the frame
	TextureID int
	// Transform is the sample transform reported by the frame source
	Transform Matrix
	// TimestampNs is the capture timestamp in nanoseconds
	TimestampNs int64
}

// SessionStats is a point-in-time snapshot of a session.
type SessionStats struct {
	// SessionID is the unique id assigned at construction
	SessionID string
	// CameraID is the device the session was created for
	CameraID string
	// State is the current session state
	State SessionState
	// Format is the negotiated format (zero until negotiation succeeded)
	Format CaptureFormat
	// FramesDelivered counts frames forwarded to the observer
	FramesDelivered uint64
	// FramesDiscarded counts frames returned unseen because the session was stopped
	FramesDiscarded uint64
	// CaptureFailures counts per-request capture failures (logged only)
	CaptureFailures uint64
	// StartLatency is the time from construction to the first frame (zero until then)
	StartLatency time.Duration
	// Uptime is the time since construction
	Uptime time.Duration
}
