package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Camera.Device == "" {
		return fmt.Errorf("camera.device is required")
	}
	if !isRightAngle(cfg.Camera.Orientation) {
		return fmt.Errorf("camera.orientation must be 0, 90, 180 or 270, got %d", cfg.Camera.Orientation)
	}
	if !isRightAngle(cfg.Camera.DisplayRotation) {
		return fmt.Errorf("camera.display_rotation must be 0, 90, 180 or 270, got %d", cfg.Camera.DisplayRotation)
	}

	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		return fmt.Errorf("capture.width and capture.height must be > 0")
	}
	if cfg.Capture.FPS <= 0 {
		return fmt.Errorf("capture.fps must be > 0")
	}
	if cfg.Capture.StatsIntervalS < 0 {
		return fmt.Errorf("capture.stats_interval_s must be >= 0")
	}
	if cfg.Capture.StatsIntervalS == 0 {
		cfg.Capture.StatsIntervalS = 2
	}

	if cfg.Retry.MaxAttempts < 0 || cfg.Retry.RetryDelayMs < 0 || cfg.Retry.MaxRetryDelayMs < 0 {
		return fmt.Errorf("retry values must be >= 0")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.RetryDelayMs == 0 {
		cfg.Retry.RetryDelayMs = 500
	}
	if cfg.Retry.MaxRetryDelayMs == 0 {
		cfg.Retry.MaxRetryDelayMs = 5000
	}
	if cfg.Retry.MaxRetryDelayMs < cfg.Retry.RetryDelayMs {
		return fmt.Errorf("retry.max_retry_delay_ms (%d) must be >= retry.retry_delay_ms (%d)",
			cfg.Retry.MaxRetryDelayMs, cfg.Retry.RetryDelayMs)
	}

	if cfg.Events.QueueSize < 0 {
		return fmt.Errorf("events.queue_size must be >= 0")
	}
	if cfg.Events.QueueSize == 0 {
		cfg.Events.QueueSize = 64
	}
	if cfg.Events.MQTT.Broker != "" && cfg.Events.MQTT.Topic == "" {
		cfg.Events.MQTT.Topic = fmt.Sprintf("care/camera/%s", cfg.InstanceID)
	}
	if cfg.Events.MQTT.QoS > 2 {
		return fmt.Errorf("events.mqtt.qos must be 0, 1 or 2, got %d", cfg.Events.MQTT.QoS)
	}

	return nil
}

func isRightAngle(deg int) bool {
	return deg == 0 || deg == 90 || deg == 180 || deg == 270
}
