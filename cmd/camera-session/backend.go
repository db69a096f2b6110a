package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/fakecam"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/gstcam"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// backend is a camera subsystem plus its frame source.
type backend struct {
	manager camerasession.CameraManager
	source  camerasession.FrameSource

	// optional
	errorCounts   func() map[string]uint64
	frameCounters func() (received, dropped uint64)
	run           func(ctx context.Context)
}

func newBackend(driver string, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch driver {
	case "gst":
		prober := probe.New(map[string]probe.Mounting{
			cfg.Camera.Device: {
				Orientation: cfg.Camera.Orientation,
				FrontFacing: cfg.Camera.FrontFacing,
			},
		}, logger)
		manager, err := gstcam.NewManager(prober, logger)
		if err != nil {
			return nil, err
		}
		source := gstcam.NewFrameSource(logger)
		return &backend{
			manager:       manager,
			source:        source,
			errorCounts:   manager.ErrorCounts,
			frameCounters: source.Counters,
			run:           func(context.Context) {},
		}, nil

	case "fake":
		log := &fakecam.Log{}
		manager := fakecam.NewManager(camerasession.DeviceDescriptor{
			ID:          cfg.Camera.Device,
			Orientation: cfg.Camera.Orientation,
			FrontFacing: cfg.Camera.FrontFacing,
			SupportedSizes: []camerasession.Size{
				{Width: 640, Height: 480},
				{Width: 1280, Height: 720},
				{Width: 1920, Height: 1080},
			},
			SupportedFpsRanges: []camerasession.FramerateRange{
				{Min: 15, Max: 15},
				{Min: 30, Max: 30},
			},
		})
		source := fakecam.NewFrameSource(log)
		interval := time.Second / time.Duration(cfg.Capture.FPS)
		return &backend{
			manager: manager,
			source:  source,
			run: func(ctx context.Context) {
				go source.Run(ctx, interval)
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown driver %q (must be gst or fake)", driver)
}

// frameObserver counts frames and hands each texture straight back to the
// frame source.
type frameObserver struct {
	source camerasession.FrameSource
	logger *slog.Logger
	frames atomic.Uint64

	frameSignal chan struct{}
}

func newFrameObserver(source camerasession.FrameSource, logger *slog.Logger) *frameObserver {
	return &frameObserver{
		source:      source,
		logger:      logger,
		frameSignal: make(chan struct{}, 1),
	}
}

func (o *frameObserver) count() uint64 { return o.frames.Load() }

func (o *frameObserver) OnCapturerStarted(_ looper.Token, success bool) {
	o.logger.Info("Capturer started", "success", success)
}

func (o *frameObserver) OnCapturerStopped(looper.Token) {
	o.logger.Info("Capturer stopped")
}

func (o *frameObserver) OnTextureFrameCaptured(_ looper.Token, width, height, textureID int, transform camerasession.Matrix, rotation int, timestampNs int64) {
	n := o.frames.Add(1)
	o.logger.Debug("Frame",
		"n", n,
		"texture_id", textureID,
		"size", fmt.Sprintf("%dx%d", width, height),
		"rotation", rotation,
		"timestamp", time.Unix(0, timestampNs).Format("15:04:05.000"))
	o.source.ReturnTextureFrame()

	select {
	case o.frameSignal <- struct{}{}:
	default:
	}
}
