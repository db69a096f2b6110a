package probe

import (
	"reflect"
	"testing"

	"github.com/pion/mediadevices/pkg/prop"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
)

func media(w, h int, fps float32) prop.Media {
	return prop.Media{Video: prop.Video{Width: w, Height: h, FrameRate: fps}}
}

func TestFromProperties(t *testing.T) {
	tests := []struct {
		name      string
		props     []prop.Media
		wantSizes []camerasession.Size
		wantFps   []camerasession.FramerateRange
	}{
		{
			name:      "deduplicated in order",
			props:     []prop.Media{media(1280, 720, 30), media(640, 480, 30), media(1280, 720, 15)},
			wantSizes: []camerasession.Size{{Width: 1280, Height: 720}, {Width: 640, Height: 480}},
			wantFps:   []camerasession.FramerateRange{{Min: 30, Max: 30}, {Min: 15, Max: 15}},
		},
		{
			name:      "fractional rates rounded",
			props:     []prop.Media{media(640, 480, 29.97)},
			wantSizes: []camerasession.Size{{Width: 640, Height: 480}},
			wantFps:   []camerasession.FramerateRange{{Min: 30, Max: 30}},
		},
		{
			name:      "unknown rate uses default range",
			props:     []prop.Media{media(640, 480, 0)},
			wantSizes: []camerasession.Size{{Width: 640, Height: 480}},
			wantFps:   []camerasession.FramerateRange{DefaultFpsRange},
		},
		{
			name:  "no properties",
			props: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := FromProperties("/dev/video0", tt.props, Mounting{Orientation: 90, FrontFacing: true})
			if desc.ID != "/dev/video0" || desc.Orientation != 90 || !desc.FrontFacing {
				t.Errorf("identity fields not carried: %+v", desc)
			}
			if !reflect.DeepEqual(desc.SupportedSizes, tt.wantSizes) {
				t.Errorf("sizes = %v, want %v", desc.SupportedSizes, tt.wantSizes)
			}
			if !reflect.DeepEqual(desc.SupportedFpsRanges, tt.wantFps) {
				t.Errorf("fps ranges = %v, want %v", desc.SupportedFpsRanges, tt.wantFps)
			}
		})
	}
}

func TestLabelMatches(t *testing.T) {
	label := "/dev/video0;/dev/v4l/by-id/usb-Logitech_C920-video-index0"
	if !labelMatches(label, "/dev/video0") {
		t.Error("node path should match")
	}
	if !labelMatches(label, "/dev/v4l/by-id/usb-Logitech_C920-video-index0") {
		t.Error("by-id path should match")
	}
	if labelMatches(label, "/dev/video1") || labelMatches(label, "") {
		t.Error("unexpected match")
	}
}
