package events

import (
	"log/slog"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// LogHandler implements camerasession.EventsHandler by logging each event.
type LogHandler struct {
	logger *slog.Logger
}

var _ camerasession.EventsHandler = (*LogHandler)(nil)

// NewLogHandler creates a handler writing to logger.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) OnCameraError(_ looper.Token, message string) {
	h.logger.Error("camera-session: camera error", "message", message)
}

func (h *LogHandler) OnCameraFreezed(_ looper.Token, message string) {
	h.logger.Error("camera-session: camera freezed", "message", message)
}

func (h *LogHandler) OnCameraOpening(_ looper.Token, cameraID string) {
	h.logger.Info("camera-session: opening camera", "camera_id", cameraID)
}

func (h *LogHandler) OnFirstFrameAvailable(looper.Token) {
	h.logger.Info("camera-session: first frame available")
}

func (h *LogHandler) OnCameraClosed(looper.Token) {
	h.logger.Info("camera-session: camera closed")
}

// Multi fans events out to several handlers, in order.
type Multi []camerasession.EventsHandler

var _ camerasession.EventsHandler = Multi(nil)

func (m Multi) OnCameraError(tok looper.Token, message string) {
	for _, h := range m {
		h.OnCameraError(tok, message)
	}
}

func (m Multi) OnCameraFreezed(tok looper.Token, message string) {
	for _, h := range m {
		h.OnCameraFreezed(tok, message)
	}
}

func (m Multi) OnCameraOpening(tok looper.Token, cameraID string) {
	for _, h := range m {
		h.OnCameraOpening(tok, cameraID)
	}
}

func (m Multi) OnFirstFrameAvailable(tok looper.Token) {
	for _, h := range m {
		h.OnFirstFrameAvailable(tok)
	}
}

func (m Multi) OnCameraClosed(tok looper.Token) {
	for _, h := range m {
		h.OnCameraClosed(tok)
	}
}
