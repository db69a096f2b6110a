package camerasession

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// frameDelivery forwards frames from the frame source to the observer.
type frameDelivery struct {
	s *Session
}

var _ FrameListener = frameDelivery{}

func (d frameDelivery) OnTextureFrameAvailable(tok looper.Token, frame TextureFrame) {
	s := d.s
	mustOnLoop(s.loop, tok, "OnTextureFrameAvailable")

	if s.State() != StateRunning {
		s.logger.Debug("camera-session: frame arrived after stop, returning it")
		s.source.ReturnTextureFrame()
		s.framesDiscarded.Add(1)
		return
	}

	if !s.firstFrameSeen {
		s.firstFrameSeen = true
		s.events.OnFirstFrameAvailable(tok)
		elapsed := time.Since(s.constructedAt)
		s.startLatency.Store(int64(elapsed))
		s.metrics.AddStartTimeSample(int(elapsed.Milliseconds()))
		s.logger.Info("camera-session: first frame available", "start_time_ms", elapsed.Milliseconds())
	}

	desc := s.descriptor
	rotation := FrameOrientation(desc.Orientation, desc.FrontFacing, s.rotation.CurrentRotation())

	transform := frame.Transform
	if desc.FrontFacing {
		transform = Multiply(transform, HorizontalFlipMatrix())
	}
	transform = RotateTextureMatrix(transform, -desc.Orientation)

	if s.stats != nil {
		s.stats.addFrame(tok)
	}
	s.framesDelivered.Add(1)

	format := s.negotiation.Format
	s.observer.OnTextureFrameCaptured(tok, format.Width, format.Height, frame.TextureID, transform, rotation, frame.TimestampNs)
}
