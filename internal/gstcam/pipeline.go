package gstcam

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// PipelineConfig contains configuration for GStreamer pipeline creation
type PipelineConfig struct {
	Device string // V4L2 device node, e.g. /dev/video0
	Width  int
	Height int
	FPS    int // whole frames per second
}

// PipelineElements holds references to GStreamer pipeline elements
// needed to reconfigure caps and to clean up
type PipelineElements struct {
	Pipeline   *gst.Pipeline
	Source     *gst.Element
	CapsFilter *gst.Element
	AppSink    *app.Sink
}

// CreatePipeline creates a capture pipeline for a V4L2 device
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The pipeline is created in the NULL state. Moving it to READY opens the
// device; PLAYING starts streaming into the appsink.
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", cfg.Device)
	src.SetProperty("do-timestamp", true)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg.Width, cfg.Height, cfg.FPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstcam: pipeline created",
		"device", cfg.Device,
		"caps", buildCaps(cfg.Width, cfg.Height, cfg.FPS),
	)

	return &PipelineElements{
		Pipeline:   pipeline,
		Source:     src,
		CapsFilter: capsfilter,
		AppSink:    appsink,
	}, nil
}

// UpdateCaps replaces the capsfilter caps.
func UpdateCaps(elements *PipelineElements, width, height, fps int) error {
	if elements == nil || elements.CapsFilter == nil {
		return fmt.Errorf("capsfilter is nil")
	}
	elements.CapsFilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(width, height, fps)))
	return nil
}

// DestroyPipeline sets the pipeline to NULL, which also closes the device.
// Safe to call with a nil or already destroyed pipeline.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaps builds the appsink caps. Size and frame rate are left open
// when zero so that the device default is negotiated.
//
// Format: "video/x-raw,format=RGBA,width=W,height=H,framerate=N/1"
func buildCaps(width, height, fps int) string {
	caps := "video/x-raw,format=RGBA"
	if width > 0 && height > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", width, height)
	}
	if fps > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", fps)
	}
	return caps
}
