package camerasession

import (
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// sessionConfigHandler handles capture session configuration outcomes.
type sessionConfigHandler struct {
	s *Session
}

var _ SessionStateCallback = sessionConfigHandler{}

func (h sessionConfigHandler) OnConfigureFailed(tok looper.Token, session CaptureSession) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnConfigureFailed")
	if session != nil {
		session.Close()
	}
	if s.State() == StateStopped {
		s.logger.Info("camera-session: capture session configuration failed after stop")
		return
	}
	s.reportError(tok, newSessionError(ErrConfigurationFailed, "Failed to configure capture session.", nil))
}

func (h sessionConfigHandler) OnConfigured(tok looper.Token, session CaptureSession) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnConfigured")
	s.logger.Debug("camera-session: capture session configured")

	if s.State() == StateStopped {
		s.logger.Info("camera-session: capture session configured after stop, closing it")
		session.Close()
		return
	}
	s.captureSession = session

	req := CaptureRequest{
		Template:         TemplateRecord,
		AETargetFpsRange: s.negotiation.NativeFramerate(),
		AEMode:           AEModeOn,
		AELock:           false,
		Targets:          []Surface{s.surface},
	}
	if err := session.SetRepeatingRequest(req, captureFailureHandler{s}, s.loop); err != nil {
		// not streaming yet, so this still fails the start
		session.Close()
		s.captureSession = nil
		s.reportError(tok, newSessionError(ErrAccessDenied, "Failed to start capture request.", err))
		return
	}

	s.source.StartListening(frameDelivery{s}, s.loop)
	s.listening = true
	s.stats = newCameraStatistics(s.loop, s.statsPeriod, s.source, s.events, s.logger)

	s.logger.Info("camera-session: camera device successfully started",
		"fps_range", req.AETargetFpsRange.String())
	s.observer.OnCapturerStarted(tok, true)
	s.resolveDone()
}

// captureFailureHandler logs per-request failures. The repeating request
// keeps running, so they never change session state.
type captureFailureHandler struct {
	s *Session
}

var _ CaptureCallback = captureFailureHandler{}

func (h captureFailureHandler) OnCaptureFailed(tok looper.Token, failure CaptureFailure) {
	s := h.s
	mustOnLoop(s.loop, tok, "OnCaptureFailed")
	s.captureFailures.Add(1)
	s.logger.Warn("camera-session: capture failed",
		"frame_number", failure.FrameNumber,
		"reason", failure.Reason,
		"image_captured", failure.WasImageCaptured)
}
