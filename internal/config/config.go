package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the file is parsed.
const (
	EnvDevice     = "CAMERA_SESSION_DEVICE"
	EnvMQTTBroker = "CAMERA_SESSION_MQTT_BROKER"
)

// Config is the camera-session configuration.
type Config struct {
	InstanceID string        `yaml:"instance_id"`
	Camera     CameraConfig  `yaml:"camera"`
	Capture    CaptureConfig `yaml:"capture"`
	Retry      RetryConfig   `yaml:"retry"`
	Events     EventsConfig  `yaml:"events"`
}

// CameraConfig describes the device and how it is mounted.
type CameraConfig struct {
	Device          string `yaml:"device"`           // e.g. /dev/video0
	Orientation     int    `yaml:"orientation"`      // sensor orientation: 0, 90, 180, 270
	FrontFacing     bool   `yaml:"front_facing"`     // mirrored for display
	DisplayRotation int    `yaml:"display_rotation"` // host display: 0, 90, 180, 270
}

// CaptureConfig is the requested capture format.
type CaptureConfig struct {
	Width          int `yaml:"width"`
	Height         int `yaml:"height"`
	FPS            int `yaml:"fps"`
	StatsIntervalS int `yaml:"stats_interval_s"` // freeze detection period (default: 2)
}

// RetryConfig controls start retries.
type RetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts"`       // default: 3
	RetryDelayMs    int `yaml:"retry_delay_ms"`     // default: 500
	MaxRetryDelayMs int `yaml:"max_retry_delay_ms"` // default: 5000
}

// EventsConfig selects where session events go. Both sinks are optional.
type EventsConfig struct {
	MQTT         MQTTConfig `yaml:"mqtt"`
	WebSocketURL string     `yaml:"websocket_url"`
	QueueSize    int        `yaml:"queue_size"` // default: 64
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Broker string `yaml:"broker"` // host:port, empty disables MQTT
	Topic  string `yaml:"topic"`  // default: care/camera/<instance_id>
	QoS    byte   `yaml:"qos"`
}

// StatsInterval returns the freeze detection period.
func (c *CaptureConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalS) * time.Second
}

// Load reads and parses a YAML configuration file, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.LookupEnv)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDevice); ok && strings.TrimSpace(v) != "" {
		cfg.Camera.Device = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMQTTBroker); ok {
		cfg.Events.MQTT.Broker = strings.TrimSpace(v)
	}
}
