package camerasession

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSupportedFormat means the device reported no sizes or no frame-rate ranges.
	ErrNoSupportedFormat = errors.New("no supported capture formats")
	// ErrAccessDenied means the subsystem refused to open, configure or arm.
	ErrAccessDenied = errors.New("camera access denied")
	// ErrConfigurationFailed means the subsystem rejected the session configuration.
	ErrConfigurationFailed = errors.New("capture session configuration failed")
	// ErrRuntimeDevice means the device disconnected or failed.
	ErrRuntimeDevice = errors.New("camera device error")
	// ErrThreadContractViolation means a state-mutating call was made off the session loop.
	ErrThreadContractViolation = errors.New("called off the camera loop")
	// ErrStoppedBeforeStart means Stop was called before the session finished starting.
	ErrStoppedBeforeStart = errors.New("session stopped before it started")
	// ErrLoopClosed means the session loop has quit and accepts no more work.
	ErrLoopClosed = errors.New("session loop is not running")
	// ErrCapturerStopped means the Capturer was stopped.
	ErrCapturerStopped = errors.New("capturer is stopped")
	// ErrAlreadyStarted means the Capturer already has a running session.
	ErrAlreadyStarted = errors.New("capturer already has a running session")
)

// SessionError is the error handed to CreateSessionCallback.OnFailure.
//
// Kind is one of the sentinel errors above and is what errors.Is matches;
// Message is the human-readable description also used for camera error events.
type SessionError struct {
	Kind    error
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause.
func (e *SessionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newSessionError(kind error, message string, cause error) *SessionError {
	return &SessionError{Kind: kind, Message: message, Err: cause}
}

// ContractViolation is the panic value raised when a session entry point is
// invoked with a token that does not belong to the running loop task.
type ContractViolation struct {
	Op  string
	Err error
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("camera-session: %s: %v", c.Op, ErrThreadContractViolation)
}

func (c *ContractViolation) Unwrap() []error {
	if c.Err == nil {
		return []error{ErrThreadContractViolation}
	}
	return []error{ErrThreadContractViolation, c.Err}
}

// DeviceErrorCode is a device-level error reported by the camera subsystem.
type DeviceErrorCode int

const (
	// ErrorCameraInUse: the device is already opened by another client
	ErrorCameraInUse DeviceErrorCode = iota + 1
	// ErrorMaxCamerasInUse: too many devices are open at once
	ErrorMaxCamerasInUse
	// ErrorCameraDisabled: a device policy forbids opening the device
	ErrorCameraDisabled
	// ErrorCameraDevice: the device hit a fatal error
	ErrorCameraDevice
	// ErrorCameraService: the camera service hit a fatal error
	ErrorCameraService
)

// Description returns the message reported for the code.
func (c DeviceErrorCode) Description() string {
	switch c {
	case ErrorCameraDevice:
		return "Camera device has encountered a fatal error."
	case ErrorCameraDisabled:
		return "Camera device could not be opened due to a device policy."
	case ErrorCameraInUse:
		return "Camera device is in use already."
	case ErrorCameraService:
		return "Camera service has encountered a fatal error."
	case ErrorMaxCamerasInUse:
		return "Camera device could not be opened because there are too many other open camera devices."
	default:
		return fmt.Sprintf("Unknown camera error: %d", int(c))
	}
}

// String returns a short name for logging
func (c DeviceErrorCode) String() string {
	switch c {
	case ErrorCameraInUse:
		return "camera_in_use"
	case ErrorMaxCamerasInUse:
		return "max_cameras_in_use"
	case ErrorCameraDisabled:
		return "camera_disabled"
	case ErrorCameraDevice:
		return "camera_device"
	case ErrorCameraService:
		return "camera_service"
	default:
		return "unknown"
	}
}
