// Package probe describes V4L2 capture devices using pion/mediadevices.
//
// mediadevices knows which sizes and frame rates a device supports but not
// how it is mounted, so orientation and facing come from configuration.
package probe

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers the camera driver
	"github.com/pion/mediadevices/pkg/prop"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
)

// DefaultFpsRange is used when a device does not report frame rates.
var DefaultFpsRange = camerasession.FramerateRange{Min: 15, Max: 30}

// Mounting is the physical placement of a device.
type Mounting struct {
	Orientation int
	FrontFacing bool
}

// DeviceInfo is one entry of List.
type DeviceInfo struct {
	ID    string
	Label string
}

// Prober implements gstcam.Prober.
type Prober struct {
	mountings map[string]Mounting
	logger    *slog.Logger
}

// New creates a prober. mountings is keyed by device id.
func New(mountings map[string]Mounting, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if mountings == nil {
		mountings = map[string]Mounting{}
	}
	return &Prober{mountings: mountings, logger: logger}
}

// List returns the video input devices.
func (p *Prober) List() []DeviceInfo {
	var out []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, DeviceInfo{ID: d.DeviceID, Label: d.Label})
	}
	return out
}

// Describe returns the descriptor of the device whose driver id or label
// matches id (a V4L2 node such as /dev/video0).
func (p *Prober) Describe(id string) (camerasession.DeviceDescriptor, error) {
	d := findDriver(id)
	if d == nil {
		return camerasession.DeviceDescriptor{}, fmt.Errorf("probe: camera %q not found", id)
	}

	if d.Status() == driver.StateClosed {
		if err := d.Open(); err != nil {
			return camerasession.DeviceDescriptor{}, fmt.Errorf("probe: failed to open %q: %w", id, err)
		}
		defer func() {
			if err := d.Close(); err != nil {
				p.logger.Warn("probe: failed to close driver", "device", id, "error", err)
			}
		}()
	}

	desc := FromProperties(id, d.Properties(), p.mountings[id])
	p.logger.Debug("probe: device described",
		"device", id,
		"sizes", len(desc.SupportedSizes),
		"fps_ranges", len(desc.SupportedFpsRanges))
	return desc, nil
}

func findDriver(id string) driver.Driver {
	for _, d := range driver.GetManager().Query(driver.FilterVideoRecorder()) {
		if d.ID() == id || labelMatches(d.Info().Label, id) {
			return d
		}
	}
	return nil
}

// labelMatches reports whether id is one of the names packed in a camera
// driver label (node path and by-id path, separated by ";").
func labelMatches(label, id string) bool {
	for _, part := range strings.Split(label, ";") {
		if part != "" && part == id {
			return true
		}
	}
	return false
}

// FromProperties builds a descriptor from driver properties. Sizes and
// frame rates are de-duplicated in reporting order; each reported frame rate
// becomes a fixed range in whole frames per second.
func FromProperties(id string, props []prop.Media, mounting Mounting) camerasession.DeviceDescriptor {
	desc := camerasession.DeviceDescriptor{
		ID:          id,
		Orientation: mounting.Orientation,
		FrontFacing: mounting.FrontFacing,
	}

	seenSize := make(map[camerasession.Size]bool)
	seenFps := make(map[int]bool)
	for _, p := range props {
		size := camerasession.Size{Width: p.Width, Height: p.Height}
		if size.Width > 0 && size.Height > 0 && !seenSize[size] {
			seenSize[size] = true
			desc.SupportedSizes = append(desc.SupportedSizes, size)
		}

		fps := int(math.Round(float64(p.FrameRate)))
		if fps > 0 && !seenFps[fps] {
			seenFps[fps] = true
			desc.SupportedFpsRanges = append(desc.SupportedFpsRanges, camerasession.FramerateRange{Min: fps, Max: fps})
		}
	}

	if len(desc.SupportedSizes) > 0 && len(desc.SupportedFpsRanges) == 0 {
		desc.SupportedFpsRanges = []camerasession.FramerateRange{DefaultFpsRange}
	}
	return desc
}
