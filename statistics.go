package camerasession

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

const (
	// DefaultStatsPeriod is how often the frame rate is measured.
	DefaultStatsPeriod = 2 * time.Second
	// freezePeriods is how many empty periods make a freeze (4s by default).
	freezePeriods = 2
)

// cameraStatistics measures the delivered frame rate on the session loop and
// reports a freeze once no frames arrived for freezePeriods periods.
type cameraStatistics struct {
	loop   *looper.Looper
	period time.Duration
	source FrameSource
	events EventsHandler
	logger *slog.Logger

	frameCount   int
	freezeCount  int
	cancelCheck  func()
	released     bool
	lastFps      atomic.Int32
	freezeEvents atomic.Uint64
}

func newCameraStatistics(loop *looper.Looper, period time.Duration, source FrameSource, events EventsHandler, logger *slog.Logger) *cameraStatistics {
	if period <= 0 {
		period = DefaultStatsPeriod
	}
	s := &cameraStatistics{
		loop:   loop,
		period: period,
		source: source,
		events: events,
		logger: logger,
	}
	s.schedule()
	return s
}

// addFrame must run on the session loop.
func (s *cameraStatistics) addFrame(tok looper.Token) {
	mustOnLoop(s.loop, tok, "statistics.addFrame")
	s.frameCount++
}

// release cancels the pending check. Must run on the session loop.
func (s *cameraStatistics) release(tok looper.Token) {
	mustOnLoop(s.loop, tok, "statistics.release")
	s.released = true
	if s.cancelCheck != nil {
		s.cancelCheck()
		s.cancelCheck = nil
	}
}

func (s *cameraStatistics) schedule() {
	s.cancelCheck = s.loop.PostDelayed(s.period, s.check)
}

func (s *cameraStatistics) check(tok looper.Token) {
	if s.released {
		return
	}

	fps := int(math.Round(float64(s.frameCount) * float64(time.Second) / float64(s.period)))
	s.lastFps.Store(int32(fps))
	s.logger.Debug("camera-session: camera fps", "fps", fps)

	if s.frameCount == 0 {
		s.freezeCount++
		if s.freezeCount >= freezePeriods {
			s.freezeEvents.Add(1)
			s.cancelCheck = nil
			if s.source.IsTextureInUse() {
				s.logger.Error("camera-session: camera freezed, frame not returned by client")
				s.events.OnCameraFreezed(tok, "Camera failure. Client must return video buffers.")
			} else {
				s.logger.Error("camera-session: camera freezed")
				s.events.OnCameraFreezed(tok, "Camera failure.")
			}
			return
		}
	} else {
		s.freezeCount = 0
	}
	s.frameCount = 0
	s.schedule()
}
