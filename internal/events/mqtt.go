package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
	mqttDisconnectMs   = 250
)

// MQTTConfig configures an MQTTSink.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	Topic    string // events are published to Topic/<kind>
	QoS      byte
}

// mqttClient is the part of mqtt.Client the sink uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes events as JSON to an MQTT broker.
type MQTTSink struct {
	cfg    MQTTConfig
	client mqttClient
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	closed    bool
}

var _ Sink = (*MQTTSink)(nil)

// DialMQTT connects to the broker. The client reconnects on its own after
// a lost connection; events published meanwhile fail and are counted by the
// Emitter.
func DialMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("events: mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: mqtt topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &MQTTSink{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("events: mqtt connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("events: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	logger.Info("events: connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("events: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("events: mqtt connection failed: %w", err)
	}

	s.client = client
	s.setConnected(true)
	return s, nil
}

func newMQTTSink(cfg MQTTConfig, client mqttClient, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{cfg: cfg, client: client, logger: logger, connected: true}
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an event of kind is published to.
func (s *MQTTSink) Topic(kind Kind) string {
	return fmt.Sprintf("%s/%s", s.cfg.Topic, kind)
}

// Send implements Sink.
func (s *MQTTSink) Send(ev Event) error {
	s.mu.RLock()
	connected, closed := s.connected, s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("mqtt sink closed")
	}
	if !connected {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := s.Topic(ev.Kind)
	token := s.client.Publish(topic, s.cfg.QoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	s.logger.Debug("events: published",
		"topic", topic,
		"qos", s.cfg.QoS,
		"size", len(payload))
	return nil
}

// Close implements Sink. Idempotent.
func (s *MQTTSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	s.client.Disconnect(mqttDisconnectMs)
	s.logger.Info("events: mqtt disconnected")
	return nil
}
