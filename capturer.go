package camerasession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// RetryConfig controls how often a Capturer retries a failed start.
type RetryConfig struct {
	MaxAttempts   int           // Total start attempts (default: 3)
	RetryDelay    time.Duration // Delay before the first retry (default: 500ms)
	MaxRetryDelay time.Duration // Retry delay cap (default: 5 seconds)
}

// DefaultRetryConfig returns the default start retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 5 * time.Second,
	}
}

// CapturerConfig configures a Capturer. The fields mirror Options; the
// Callback is owned by the Capturer.
type CapturerConfig struct {
	CameraID  string
	Width     int
	Height    int
	Framerate int

	Manager     CameraManager
	FrameSource FrameSource
	Observer    CapturerObserver
	Events      EventsHandler
	Rotation    DisplayRotation
	Metrics     MetricsSink
	StatsPeriod time.Duration
	Logger      *slog.Logger

	Retry RetryConfig
}

// Capturer owns a session loop and starts sessions on it, retrying failed
// starts with exponential backoff.
//
// Every failed attempt reports OnCapturerStarted(false) to the observer;
// the Start error reflects the last attempt.
type Capturer struct {
	cfg    CapturerConfig
	loop   *looper.Looper
	logger *slog.Logger

	mu      sync.Mutex
	session *Session

	starting atomic.Bool
	stopped  atomic.Bool
	done     chan struct{} // closed by Stop
	attempts atomic.Uint32
}

// NewCapturer validates cfg and starts the session loop.
func NewCapturer(cfg CapturerConfig) (*Capturer, error) {
	opts := cfg.options(nil)
	opts.Callback = &sessionResult{}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("camera-session: invalid capturer config: %w", err)
	}

	def := DefaultRetryConfig()
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Retry.RetryDelay <= 0 {
		cfg.Retry.RetryDelay = def.RetryDelay
	}
	if cfg.Retry.MaxRetryDelay <= 0 {
		cfg.Retry.MaxRetryDelay = def.MaxRetryDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Capturer{
		cfg:    cfg,
		loop:   looper.New("camera-" + cfg.CameraID),
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Loop returns the session loop.
func (c *Capturer) Loop() *looper.Looper { return c.loop }

// Session returns the current session, or nil.
func (c *Capturer) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Attempts returns the number of start attempts made so far.
func (c *Capturer) Attempts() int { return int(c.attempts.Load()) }

// Start creates sessions until one starts, the attempts are exhausted, ctx
// is cancelled or the Capturer is stopped. It blocks until the outcome is
// known and must not be called from the session loop.
//
// Format negotiation failures are not retried. Start fails with
// ErrAlreadyStarted while the previous session is still running and with
// ErrCapturerStopped once Stop was called.
func (c *Capturer) Start(ctx context.Context) (*Session, error) {
	if c.stopped.Load() {
		return nil, fmt.Errorf("camera-session: start: %w", ErrCapturerStopped)
	}
	if !c.starting.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("camera-session: start already in progress")
	}
	defer c.starting.Store(false)

	if s := c.Session(); s != nil && s.State() == StateRunning {
		return nil, fmt.Errorf("camera-session: start: session %s: %w", s.ID(), ErrAlreadyStarted)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, fmt.Errorf("camera-session: start: %w", ErrCapturerStopped)
		default:
		}

		c.attempts.Add(1)
		s, err := c.startOnce(ctx)
		if err == nil {
			c.logger.Info("camera-session: capturer started",
				"camera_id", c.cfg.CameraID, "attempt", attempt)
			return s, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.stopped.Load() {
			return nil, fmt.Errorf("camera-session: start: %w", ErrCapturerStopped)
		}
		if !retryable(err) {
			return nil, err
		}
		if attempt == c.cfg.Retry.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, c.cfg.Retry)
		c.logger.Warn("camera-session: start failed, retrying",
			"camera_id", c.cfg.CameraID,
			"attempt", attempt,
			"max_attempts", c.cfg.Retry.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("camera-session: context cancelled during backoff")
			return nil, ctx.Err()
		case <-c.done:
			timer.Stop()
			c.logger.Info("camera-session: capturer stopped during backoff")
			return nil, fmt.Errorf("camera-session: start: %w", ErrCapturerStopped)
		}
	}

	return nil, fmt.Errorf("camera-session: start failed after %d attempts: %w",
		c.cfg.Retry.MaxAttempts, lastErr)
}

func (c *Capturer) startOnce(ctx context.Context) (*Session, error) {
	result := &sessionResult{ch: make(chan sessionOutcome, 1)}

	// Stop reads the session under mu, so a session created here is either
	// seen and stopped by Stop or never created.
	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return nil, fmt.Errorf("camera-session: start: %w", ErrCapturerStopped)
	}
	s, err := Create(c.loop, c.cfg.options(result))
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.session = s
	c.mu.Unlock()

	select {
	case out := <-result.ch:
		return out.session, out.err
	case <-ctx.Done():
		s.Stop()
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("camera-session: start: %w", ErrCapturerStopped)
	}
}

// Stop stops the current session, waits for its teardown and quits the
// session loop. Idempotent.
//
// Called from the session loop (for example from an observer callback) Stop
// stops the session and quits the loop without waiting for it to drain.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.stopped.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	s := c.session
	c.mu.Unlock()
	close(c.done)

	if s != nil {
		s.Stop()
	}
	// teardown was posted before Quit, so it still runs
	c.loop.Quit()
	if c.loop.OnLoop() {
		c.logger.Info("camera-session: capturer stopping from its loop", "camera_id", c.cfg.CameraID)
		return
	}
	<-c.loop.Done()
	c.logger.Info("camera-session: capturer stopped", "camera_id", c.cfg.CameraID)
}

func (cfg CapturerConfig) options(cb CreateSessionCallback) Options {
	return Options{
		CameraID:    cfg.CameraID,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Framerate:   cfg.Framerate,
		Manager:     cfg.Manager,
		FrameSource: cfg.FrameSource,
		Observer:    cfg.Observer,
		Callback:    cb,
		Events:      cfg.Events,
		Rotation:    cfg.Rotation,
		Metrics:     cfg.Metrics,
		StatsPeriod: cfg.StatsPeriod,
		Logger:      cfg.Logger,
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNoSupportedFormat),
		errors.Is(err, ErrStoppedBeforeStart),
		errors.Is(err, ErrLoopClosed),
		errors.Is(err, ErrCapturerStopped):
		return false
	}
	return true
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}

type sessionOutcome struct {
	session *Session
	err     error
}

// sessionResult adapts CreateSessionCallback to a channel.
type sessionResult struct {
	ch chan sessionOutcome
}

func (r *sessionResult) OnDone(s *Session) {
	r.ch <- sessionOutcome{session: s}
}

func (r *sessionResult) OnFailure(err error) {
	r.ch <- sessionOutcome{err: err}
}
