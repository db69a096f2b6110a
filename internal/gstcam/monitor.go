package gstcam

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCounters holds atomic counters per error category
type ErrorCounters struct {
	counts [ErrCategoryUnknown + 1]atomic.Uint64
}

// Add increments the counter of c.
func (e *ErrorCounters) Add(c ErrorCategory) {
	if c < 0 || c > ErrCategoryUnknown {
		c = ErrCategoryUnknown
	}
	e.counts[c].Add(1)
}

// Snapshot returns the counters keyed by category name.
func (e *ErrorCounters) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(e.counts))
	for i := range e.counts {
		out[ErrorCategory(i).String()] = e.counts[i].Load()
	}
	return out
}

// BusHandlers receives what MonitorPipelineBus observes.
type BusHandlers struct {
	// OnFatal is called once, for the error or EOS that ends monitoring
	OnFatal func(category ErrorCategory, message string)
	// OnWarning is called for every warning; streaming continues
	OnWarning func(seq int64, message string)
}

// MonitorPipelineBus watches the pipeline bus until ctx is cancelled or the
// pipeline fails.
//
// Errors are classified and counted, then reported once through OnFatal.
// End of stream from a live camera means the device went away and is
// reported as a disconnect. Warnings are reported and monitoring continues.
//
// Returns nil if ctx is cancelled, or the fatal error otherwise.
func MonitorPipelineBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	handlers BusHandlers,
	counters *ErrorCounters,
) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	var warnings int64

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstcam: context cancelled, stopping pipeline monitor")
			return nil

		default:
			// short timeout for responsive shutdown
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("gstcam: end of stream received")
				counters.Add(ErrCategoryDisconnected)
				if handlers.OnFatal != nil {
					handlers.OnFatal(ErrCategoryDisconnected, "end of stream")
				}
				return fmt.Errorf("end of stream")

			case gst.MessageError:
				gerr := msg.ParseError()
				category := ClassifyGStreamerError(gerr)
				counters.Add(category)

				slog.Error("gstcam: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
				)
				if handlers.OnFatal != nil {
					handlers.OnFatal(category, gerr.Error())
				}
				return fmt.Errorf("pipeline error [%s]: %s", category.String(), gerr.Error())

			case gst.MessageWarning:
				gerr := msg.ParseWarning()
				warnings++
				slog.Warn("gstcam: pipeline warning", "warning", gerr.Error(), "debug", gerr.DebugString())
				if handlers.OnWarning != nil {
					handlers.OnWarning(warnings, gerr.Error())
				}

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					slog.Debug("gstcam: pipeline state changed", "from", old, "to", new)
				}
			}
		}
	}
}

// popError waits briefly for an error message explaining a failed state
// change. Returns ErrCategoryUnknown and an empty message if none arrives.
func popError(pipeline *gst.Pipeline, timeout time.Duration) (ErrorCategory, string) {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil || msg.Type() != gst.MessageError {
			continue
		}
		gerr := msg.ParseError()
		return ClassifyGStreamerError(gerr), gerr.Error()
	}
	return ErrCategoryUnknown, ""
}
