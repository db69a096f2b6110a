package camerasession

import (
	"fmt"
	"math"
)

// Weights of the frame-rate range penalty. A low minimum is cheap up to 8 fps
// and expensive beyond; a max close to the target is cheap up to 5 fps off.
const (
	minFpsThreshold  = 8000
	minFpsLowWeight  = 1
	minFpsHighWeight = 4
	maxFpsThreshold  = 5000
	maxFpsLowWeight  = 1
	maxFpsHighWeight = 3
)

// Negotiation is the outcome of NegotiateFormat.
type Negotiation struct {
	// Format is the selected capture format, with a normalized frame-rate range
	Format CaptureFormat
	// UnitFactor converts native frame-rate values to milli-fps
	UnitFactor int
}

// NativeFramerate returns the selected frame-rate range in the subsystem's
// native unit.
func (n Negotiation) NativeFramerate() FramerateRange {
	return FramerateRange{
		Min: n.Format.Framerate.Min / n.UnitFactor,
		Max: n.Format.Framerate.Max / n.UnitFactor,
	}
}

// NegotiateFormat selects the supported size closest to width x height and
// the supported frame-rate range closest to fps.
//
// nativeRanges are expressed in the subsystem's unit; the unit factor is
// derived from them and returned with the format.
//
// Returns ErrNoSupportedFormat if sizes or nativeRanges is empty.
func NegotiateFormat(sizes []Size, nativeRanges []FramerateRange, width, height, fps int) (Negotiation, error) {
	if len(sizes) == 0 || len(nativeRanges) == 0 {
		return Negotiation{}, fmt.Errorf("%w: %d sizes, %d frame-rate ranges",
			ErrNoSupportedFormat, len(sizes), len(nativeRanges))
	}

	factor := FpsUnitFactor(nativeRanges)
	ranges := make([]FramerateRange, len(nativeRanges))
	for i, r := range nativeRanges {
		ranges[i] = FramerateRange{Min: r.Min * factor, Max: r.Max * factor}
	}

	size := closestSize(sizes, width, height)
	fpsRange := closestFramerateRange(ranges, fps)

	return Negotiation{
		Format: CaptureFormat{
			Width:     size.Width,
			Height:    size.Height,
			Framerate: fpsRange,
		},
		UnitFactor: factor,
	}, nil
}

// FpsUnitFactor returns 1000 when the subsystem reports whole fps
// (detected from the first range) and 1 when it already reports milli-fps.
func FpsUnitFactor(nativeRanges []FramerateRange) int {
	if len(nativeRanges) == 0 || nativeRanges[0].Max < 1000 {
		return 1000
	}
	return 1
}

func closestSize(sizes []Size, width, height int) Size {
	best := sizes[0]
	bestDiff := math.MaxInt
	for _, s := range sizes {
		diff := abs(s.Width-width) + abs(s.Height-height)
		if diff < bestDiff {
			best, bestDiff = s, diff
		}
	}
	return best
}

func closestFramerateRange(ranges []FramerateRange, fps int) FramerateRange {
	target := fps * 1000
	best := ranges[0]
	bestErr := math.MaxInt
	for _, r := range ranges {
		e := progressivePenalty(r.Min, minFpsThreshold, minFpsLowWeight, minFpsHighWeight) +
			progressivePenalty(abs(target-r.Max), maxFpsThreshold, maxFpsLowWeight, maxFpsHighWeight)
		if e < bestErr {
			best, bestErr = r, e
		}
	}
	return best
}

func progressivePenalty(value, threshold, lowWeight, highWeight int) int {
	if value < threshold {
		return value * lowWeight
	}
	return threshold*lowWeight + (value-threshold)*highWeight
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
