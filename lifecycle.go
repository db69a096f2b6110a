package camerasession

import (
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// deviceStateHandler handles device lifecycle notifications for a session.
type deviceStateHandler struct {
	s *Session
}

var _ DeviceStateCallback = deviceStateHandler{}

func (h deviceStateHandler) OnOpened(tok looper.Token, device CameraDevice) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnOpened")
	s.logger.Debug("camera-session: camera opened")

	if s.State() == StateStopped {
		s.logger.Info("camera-session: camera opened after stop, closing it")
		device.Close()
		return
	}
	s.device = device

	format := s.negotiation.Format
	surface, err := s.source.CreateSurface(format.Width, format.Height)
	if err != nil {
		s.reportError(tok, newSessionError(ErrAccessDenied, "Failed to create capture surface.", err))
		return
	}
	s.surface = surface

	if err := device.CreateCaptureSession([]Surface{surface}, sessionConfigHandler{s}, s.loop); err != nil {
		s.reportError(tok, newSessionError(ErrAccessDenied, "Failed to create capture session.", err))
	}
}

func (h deviceStateHandler) OnDisconnected(tok looper.Token, device CameraDevice) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnDisconnected")
	s.logger.Warn("camera-session: camera disconnected")
	s.adoptLateDevice(device)
	s.reportError(tok, newSessionError(ErrRuntimeDevice, "Camera disconnected.", nil))
}

func (h deviceStateHandler) OnError(tok looper.Token, device CameraDevice, code DeviceErrorCode) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnError")
	s.logger.Warn("camera-session: camera device error", "code", code.String())
	s.adoptLateDevice(device)
	s.reportError(tok, newSessionError(deviceErrorKind(code), code.Description(), nil))
}

func (h deviceStateHandler) OnClosed(tok looper.Token, device CameraDevice) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnClosed")
	s.logger.Debug("camera-session: camera device closed")
	s.events.OnCameraClosed(tok)
}

// adoptLateDevice keeps a device reported by a failed open so that the error
// path closes it. A device arriving after stop is closed right away.
func (s *Session) adoptLateDevice(device CameraDevice) {
	if device == nil || s.device != nil {
		return
	}
	if s.State() == StateStopped {
		device.Close()
		return
	}
	s.device = device
}

// deviceErrorKind maps open-time refusals to ErrAccessDenied and everything
// else to ErrRuntimeDevice.
func deviceErrorKind(code DeviceErrorCode) error {
	switch code {
	case ErrorCameraInUse, ErrorMaxCamerasInUse, ErrorCameraDisabled:
		return ErrAccessDenied
	default:
		return ErrRuntimeDevice
	}
}
