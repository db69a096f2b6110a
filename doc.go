// Package camerasession runs a camera capture session as a state machine
// confined to a single event loop.
//
// This module is part of Orion 2.0 and implements Bounded Context "Camera
// Capture". A Session opens a camera through an asynchronous camera
// subsystem, negotiates the closest supported format, configures a capture
// session targeting a frame source surface, arms a repeating request and
// delivers oriented texture frames to a CapturerObserver until it is stopped.
//
// # Quick Start
//
// Capturer owns the loop and retries failed starts:
//
//	capturer, err := camerasession.NewCapturer(camerasession.CapturerConfig{
//	    CameraID:    "/dev/video0",
//	    Width:       1280,
//	    Height:      720,
//	    Framerate:   30,
//	    Manager:     manager,     // camerasession.CameraManager
//	    FrameSource: frameSource, // camerasession.FrameSource
//	    Observer:    observer,    // receives frames
//	    Rotation:    camerasession.StaticRotation(0),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer capturer.Stop()
//
//	session, err := capturer.Start(ctx)
//	if err != nil {
//	    log.Fatal(err) // errors.Is(err, camerasession.ErrNoSupportedFormat), ...
//	}
//	log.Printf("capturing %v", session.Stats().Format)
//
// Create starts a single session on a loop the caller owns; its outcome is
// reported once to the CreateSessionCallback.
//
// # Threading
//
// All session state lives on the looper.Looper passed to Create. Subsystem
// callbacks carry a looper.Token proving they run on that loop; loop-only
// entry points called with another loop's token panic with a
// *ContractViolation wrapping ErrThreadContractViolation.
//
// Observer and events callbacks also receive the token, so they can call
// Session.StopOn directly.
//
// Stop may be called from any goroutine. Off the loop it posts the stop and
// waits until the session is stopped; on the loop it detects the running
// task and stops immediately without waiting, as StopOn does. Handles are
// released afterwards, in a separate loop task: stop listening, release
// statistics, close the capture session, release the surface, close the
// device. Stop is idempotent.
//
// # Start Outcome
//
// Until the capture session is configured every error is a start failure:
// the session stops, releases what it holds, reports OnFailure and
// OnCapturerStarted(false). After that, device errors are reported through
// EventsHandler.OnCameraError and the session keeps its state. Stopping
// before the start completed reports ErrStoppedBeforeStart.
//
// # Frame Delivery
//
// Each frame is rotated by the orientation derived from the sensor
// orientation, the display rotation (queried per frame) and the facing.
// Front-facing frames are mirrored first. Frames arriving after the session
// stopped are returned to the frame source without delivery.
//
// # Freeze Detection
//
// The session counts delivered frames and checks every StatsPeriod (default
// 2 s). After two consecutive periods without frames it reports
// EventsHandler.OnCameraFreezed once.
//
// # Subsystems
//
//   - internal/gstcam: GStreamer v4l2src pipeline (requires gstreamer1.0 runtime)
//   - internal/probe: device capabilities via pion/mediadevices
//   - internal/fakecam: in-memory subsystem for tests and the fake driver
package camerasession
