package camerasession_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/fakecam"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// flakyManager refuses the first failures opens.
type flakyManager struct {
	*fakecam.Manager
	failures int32
	opens    atomic.Int32
}

func (m *flakyManager) OpenCamera(id string, cb camerasession.DeviceStateCallback, poster looper.Poster) error {
	if m.opens.Add(1) <= m.failures {
		return fakecam.ErrFake
	}
	return m.Manager.OpenCamera(id, cb, poster)
}

func newCapturerConfig(manager camerasession.CameraManager, log *fakecam.Log) (camerasession.CapturerConfig, *fakecam.FrameSource) {
	src := fakecam.NewFrameSource(log)
	return camerasession.CapturerConfig{
		CameraID:    "front",
		Width:       1280,
		Height:      720,
		Framerate:   30,
		Manager:     manager,
		FrameSource: src,
		Observer:    fakecam.NewObserver(log, src),
		Logger:      quietLogger,
		Retry: camerasession.RetryConfig{
			MaxAttempts:   3,
			RetryDelay:    5 * time.Millisecond,
			MaxRetryDelay: 20 * time.Millisecond,
		},
	}, src
}

func TestCapturer_StartAndStop(t *testing.T) {
	m := fakecam.NewManager(frontCamera())
	cfg, _ := newCapturerConfig(m, m.Log)
	c, err := camerasession.NewCapturer(cfg)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}

	s, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s != c.Session() || s.State() != camerasession.StateRunning {
		t.Fatal("Start did not return the running session")
	}
	if c.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", c.Attempts())
	}

	c.Stop()
	c.Stop()

	select {
	case <-c.Loop().Done():
	default:
		t.Fatal("loop still running after Stop")
	}
	if !m.LastDevice().Closed() {
		t.Error("device not closed by Stop")
	}
	if _, err := c.Start(context.Background()); err == nil {
		t.Error("Start succeeded on a stopped capturer")
	}
}

func TestCapturer_RetriesFailedStarts(t *testing.T) {
	tests := []struct {
		name         string
		failures     int32
		wantErr      bool
		wantAttempts int
	}{
		{"first attempt", 0, false, 1},
		{"recovers on third attempt", 2, false, 3},
		{"gives up", 5, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &flakyManager{Manager: fakecam.NewManager(frontCamera()), failures: tt.failures}
			cfg, _ := newCapturerConfig(m, m.Log)
			c, err := camerasession.NewCapturer(cfg)
			if err != nil {
				t.Fatalf("NewCapturer: %v", err)
			}
			defer c.Stop()

			_, err = c.Start(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, camerasession.ErrAccessDenied) {
				t.Errorf("final error %v should wrap ErrAccessDenied", err)
			}
			if c.Attempts() != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", c.Attempts(), tt.wantAttempts)
			}
		})
	}
}

func TestCapturer_NegotiationFailureNotRetried(t *testing.T) {
	desc := frontCamera()
	desc.SupportedFpsRanges = nil
	m := fakecam.NewManager(desc)
	cfg, _ := newCapturerConfig(m, m.Log)
	c, err := camerasession.NewCapturer(cfg)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	defer c.Stop()

	_, err = c.Start(context.Background())
	if !errors.Is(err, camerasession.ErrNoSupportedFormat) {
		t.Fatalf("Start error = %v, want ErrNoSupportedFormat", err)
	}
	if c.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", c.Attempts())
	}
}

func TestCapturer_ContextCancelledWhileOpening(t *testing.T) {
	m := fakecam.NewManager(frontCamera())
	m.HoldOpen = true
	cfg, _ := newCapturerConfig(m, m.Log)
	c, err := camerasession.NewCapturer(cfg)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = c.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start error = %v, want deadline exceeded", err)
	}
	if s := c.Session(); s == nil || s.State() != camerasession.StateStopped {
		t.Error("pending session was not stopped")
	}
}

func TestNewCapturer_InvalidConfig(t *testing.T) {
	m := fakecam.NewManager(frontCamera())
	cfg, _ := newCapturerConfig(m, m.Log)
	cfg.Manager = nil
	if _, err := camerasession.NewCapturer(cfg); err == nil {
		t.Error("expected an error for a missing manager")
	}
}

func TestCapturer_StopDuringBackoff(t *testing.T) {
	m := &flakyManager{Manager: fakecam.NewManager(frontCamera()), failures: 100}
	cfg, _ := newCapturerConfig(m, m.Log)
	cfg.Retry = camerasession.RetryConfig{
		MaxAttempts:   6,
		RetryDelay:    100 * time.Millisecond,
		MaxRetryDelay: time.Second,
	}
	c, err := camerasession.NewCapturer(cfg)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background())
		errc <- err
	}()

	time.Sleep(30 * time.Millisecond)
	stoppedAt := time.Now()
	c.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, camerasession.ErrCapturerStopped) {
			t.Errorf("Start error = %v, want ErrCapturerStopped", err)
		}
		if elapsed := time.Since(stoppedAt); elapsed > 90*time.Millisecond {
			t.Errorf("Start returned %v after Stop, want before the next backoff expires", elapsed)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Start kept retrying after Stop")
	}
	if n := c.Attempts(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	if n := m.opens.Load(); n != 1 {
		t.Errorf("opens = %d, want 1", n)
	}
}

func TestCapturer_SecondStartRejected(t *testing.T) {
	m := fakecam.NewManager(frontCamera())
	cfg, _ := newCapturerConfig(m, m.Log)
	c, err := camerasession.NewCapturer(cfg)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	defer c.Stop()

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := c.Start(context.Background()); !errors.Is(err, camerasession.ErrAlreadyStarted) {
		t.Fatalf("second Start error = %v, want ErrAlreadyStarted", err)
	}
	if c.Session() != first || first.State() != camerasession.StateRunning {
		t.Error("second Start replaced the running session")
	}
	if n := len(m.Devices()); n != 1 {
		t.Errorf("devices opened = %d, want 1", n)
	}

	// once the running session is stopped the capturer may start again
	first.Stop()
	second, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start after stopping the session: %v", err)
	}
	if second == first || c.Session() != second {
		t.Error("restart did not produce a new session")
	}
	if c.Attempts() != 2 {
		t.Errorf("attempts = %d, want 2", c.Attempts())
	}
}

func TestCapturer_StopFromObserver(t *testing.T) {
	m := fakecam.NewManager(frontCamera())
	cfg, src := newCapturerConfig(m, m.Log)
	obs := fakecam.NewObserver(m.Log, src)
	cfg.Observer = obs

	c, err := camerasession.NewCapturer(cfg)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	obs.StartHook = func(_ looper.Token, success bool) {
		if success {
			c.Stop()
		}
	}

	started := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background())
		started <- err
	}()

	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("Start did not return")
	}
	select {
	case <-c.Loop().Done():
	case <-time.After(waitTimeout):
		t.Fatal("loop did not exit after Stop from its own callback")
	}

	if obs.StoppedCount() != 1 {
		t.Errorf("OnCapturerStopped fired %d times, want 1", obs.StoppedCount())
	}
	if !m.LastDevice().Closed() {
		t.Error("device not closed")
	}
	c.Stop()
}
