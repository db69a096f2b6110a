package gstcam

import (
	"testing"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		debug   string
		want    ErrorCategory
	}{
		{"device busy", "Could not open device '/dev/video0' for reading and writing.", "system error: Device or resource busy", ErrCategoryBusy},
		{"permission", "Could not open device '/dev/video0'", "Permission denied", ErrCategoryPermission},
		{"missing node", "Cannot identify device '/dev/video9'.", "No such file or directory ... does not exist", ErrCategoryDisconnected},
		{"unplugged", "Error reading from device", "No such device", ErrCategoryDisconnected},
		{"caps", "Internal data stream error.", "streaming stopped, reason not-negotiated (-4): not negotiated", ErrCategoryFormat},
		{"unknown", "Something odd happened", "", ErrCategoryUnknown},
		{"case insensitive", "DEVICE IS BUSY", "", ErrCategoryBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message, tt.debug); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyGStreamerError_Nil(t *testing.T) {
	if got := ClassifyGStreamerError(nil); got != ErrCategoryUnknown {
		t.Errorf("ClassifyGStreamerError(nil) = %v, want unknown", got)
	}
}

func TestErrorCategory_DeviceError(t *testing.T) {
	tests := []struct {
		category         ErrorCategory
		wantCode         camerasession.DeviceErrorCode
		wantDisconnected bool
	}{
		{ErrCategoryBusy, camerasession.ErrorCameraInUse, false},
		{ErrCategoryPermission, camerasession.ErrorCameraDisabled, false},
		{ErrCategoryDisconnected, 0, true},
		{ErrCategoryFormat, camerasession.ErrorCameraDevice, false},
		{ErrCategoryUnknown, camerasession.ErrorCameraService, false},
	}

	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			code, disconnected := tt.category.DeviceError()
			if code != tt.wantCode || disconnected != tt.wantDisconnected {
				t.Errorf("DeviceError() = (%v, %v), want (%v, %v)",
					code, disconnected, tt.wantCode, tt.wantDisconnected)
			}
		})
	}
}

func TestErrorCounters(t *testing.T) {
	var c ErrorCounters
	c.Add(ErrCategoryBusy)
	c.Add(ErrCategoryBusy)
	c.Add(ErrorCategory(99))

	snap := c.Snapshot()
	if snap["busy"] != 2 {
		t.Errorf("busy = %d, want 2", snap["busy"])
	}
	if snap["unknown"] != 1 {
		t.Errorf("out-of-range category should count as unknown, got %d", snap["unknown"])
	}
}

func TestBuildCaps(t *testing.T) {
	tests := []struct {
		width, height, fps int
		want               string
	}{
		{1280, 720, 30, "video/x-raw,format=RGBA,width=1280,height=720,framerate=30/1"},
		{640, 480, 0, "video/x-raw,format=RGBA,width=640,height=480"},
		{0, 0, 15, "video/x-raw,format=RGBA,framerate=15/1"},
		{0, 0, 0, "video/x-raw,format=RGBA"},
	}

	for _, tt := range tests {
		if got := buildCaps(tt.width, tt.height, tt.fps); got != tt.want {
			t.Errorf("buildCaps(%d, %d, %d) = %q, want %q", tt.width, tt.height, tt.fps, got, tt.want)
		}
	}
}
