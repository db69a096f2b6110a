// Package events publishes camera session events.
//
// Session events are raised on the session's loop and must not block it.
// Emitter turns them into Event values and hands them to a bounded queue;
// a worker goroutine forwards each event to every Sink (MQTT, websocket).
// When the queue is full the event is dropped and counted.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// Kind identifies an event.
type Kind string

const (
	KindError      Kind = "camera_error"
	KindFreeze     Kind = "camera_freezed"
	KindOpening    Kind = "camera_opening"
	KindFirstFrame Kind = "first_frame"
	KindClosed     Kind = "camera_closed"
)

// DefaultQueueSize bounds the events waiting for the sinks.
const DefaultQueueSize = 64

// Event is the published form of a session event.
type Event struct {
	Kind       Kind      `json:"kind"`
	InstanceID string    `json:"instance_id"`
	CameraID   string    `json:"camera_id"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// JSON encodes the event.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Send(ev Event) error
	Close() error
}

// Emitter implements camerasession.EventsHandler on top of sinks.
type Emitter struct {
	instanceID string
	cameraID   string
	sinks      []Sink
	logger     *slog.Logger
	now        func() time.Time

	queue chan Event
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex // guards closed against concurrent sends
	closed    bool

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

var _ camerasession.EventsHandler = (*Emitter)(nil)

// NewEmitter starts an emitter forwarding to sinks.
func NewEmitter(instanceID, cameraID string, queueSize int, logger *slog.Logger, sinks ...Sink) (*Emitter, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("events: at least one sink is required")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{
		instanceID: instanceID,
		cameraID:   cameraID,
		sinks:      sinks,
		logger:     logger,
		now:        time.Now,
		queue:      make(chan Event, queueSize),
		done:       make(chan struct{}),
	}
	go e.run()
	return e, nil
}

func (e *Emitter) OnCameraError(_ looper.Token, message string)   { e.emit(KindError, message) }
func (e *Emitter) OnCameraFreezed(_ looper.Token, message string) { e.emit(KindFreeze, message) }
func (e *Emitter) OnCameraOpening(_ looper.Token, cameraID string) {
	e.emit(KindOpening, cameraID)
}
func (e *Emitter) OnFirstFrameAvailable(looper.Token) { e.emit(KindFirstFrame, "") }
func (e *Emitter) OnCameraClosed(looper.Token)        { e.emit(KindClosed, "") }

func (e *Emitter) emit(kind Kind, message string) {
	ev := Event{
		Kind:       kind,
		InstanceID: e.instanceID,
		CameraID:   e.cameraID,
		Message:    message,
		Timestamp:  e.now(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.dropped.Add(1)
		e.logger.Warn("events: queue full, event dropped", "kind", kind)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		for _, s := range e.sinks {
			if err := s.Send(ev); err != nil {
				e.failed.Add(1)
				e.logger.Warn("events: publish failed",
					"sink", s.Name(),
					"kind", ev.Kind,
					"error", err)
				continue
			}
			e.published.Add(1)
		}
	}
}

// Stats are emitter counters. Published and Failed count per sink.
type Stats struct {
	Published uint64
	Dropped   uint64
	Failed    uint64
}

// Stats returns the emitter counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
		Failed:    e.failed.Load(),
	}
}

// Close drains the queue, waiting at most until ctx is done, then closes
// the sinks. Idempotent.
func (e *Emitter) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()

		select {
		case <-e.done:
		case <-ctx.Done():
			err = fmt.Errorf("events: drain interrupted: %w", ctx.Err())
		}

		for _, s := range e.sinks {
			if cerr := s.Close(); cerr != nil {
				e.logger.Warn("events: failed to close sink", "sink", s.Name(), "error", cerr)
			}
		}
	})
	return err
}
