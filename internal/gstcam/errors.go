package gstcam

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
)

// ErrorCategory represents the classification of GStreamer errors raised by
// a capture device
type ErrorCategory int

const (
	// ErrCategoryBusy indicates the device is held by another process
	ErrCategoryBusy ErrorCategory = iota
	// ErrCategoryPermission indicates the process may not open the device
	ErrCategoryPermission
	// ErrCategoryDisconnected indicates the device node is gone or unplugged
	ErrCategoryDisconnected
	// ErrCategoryFormat indicates caps negotiation or format failures
	ErrCategoryFormat
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryBusy:
		return "busy"
	case ErrCategoryPermission:
		return "permission"
	case ErrCategoryDisconnected:
		return "disconnected"
	case ErrCategoryFormat:
		return "format"
	default:
		return "unknown"
	}
}

// DeviceError maps the category to the device error reported to the session.
// Disconnects are not device errors: disconnected is true and code is zero.
func (e ErrorCategory) DeviceError() (code camerasession.DeviceErrorCode, disconnected bool) {
	switch e {
	case ErrCategoryBusy:
		return camerasession.ErrorCameraInUse, false
	case ErrCategoryPermission:
		return camerasession.ErrorCameraDisabled, false
	case ErrCategoryDisconnected:
		return 0, true
	case ErrCategoryFormat:
		return camerasession.ErrorCameraDevice, false
	default:
		return camerasession.ErrorCameraService, false
	}
}

// ClassifyGStreamerError categorizes a GStreamer error.
// go-gst's GError does not expose the domain, so classification relies on
// string matching.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return Classify(gerr.Error(), gerr.DebugString())
}

// Classify categorizes an error from its message and debug string.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	// most specific first
	switch {
	case containsAny(combined, busyKeywords):
		return ErrCategoryBusy
	case containsAny(combined, permissionKeywords):
		return ErrCategoryPermission
	case containsAny(combined, disconnectKeywords):
		return ErrCategoryDisconnected
	case containsAny(combined, formatKeywords):
		return ErrCategoryFormat
	default:
		return ErrCategoryUnknown
	}
}

var (
	busyKeywords = []string{
		"busy",
		"in use",
		"ebusy",
	}
	permissionKeywords = []string{
		"permission denied",
		"not permitted",
		"eacces",
		"access denied",
	}
	disconnectKeywords = []string{
		"no such device",
		"enodev",
		"does not exist",
		"not found",
		"disconnected",
		"unplugged",
		"end of stream",
	}
	formatKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"resolution",
		"framerate",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
