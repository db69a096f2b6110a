package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
	gate   chan struct{}
	closed bool
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Send(ev Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memorySink) kinds() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Kind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func TestNewEmitter_RequiresSink(t *testing.T) {
	if _, err := NewEmitter("orion-1", "/dev/video0", 0, nil); err == nil {
		t.Fatal("expected error without sinks")
	}
}

func TestEmitter_ForwardsInOrder(t *testing.T) {
	sink := &memorySink{}
	e, err := NewEmitter("orion-1", "/dev/video0", 8, discard(), sink)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	e.OnCameraOpening(looper.Token{}, "/dev/video0")
	e.OnFirstFrameAvailable(looper.Token{})
	e.OnCameraError(looper.Token{}, "Camera disconnected.")
	e.OnCameraFreezed(looper.Token{}, "Camera failure.")
	e.OnCameraClosed(looper.Token{})

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []Kind{KindOpening, KindFirstFrame, KindError, KindFreeze, KindClosed}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	first := sink.events[0]
	if first.InstanceID != "orion-1" || first.CameraID != "/dev/video0" || first.Message != "/dev/video0" {
		t.Errorf("unexpected event %+v", first)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
	if s := e.Stats(); s.Published != 5 || s.Dropped != 0 {
		t.Errorf("stats = %+v", s)
	}

	// After close events are dropped, not panicking on the closed queue.
	e.OnCameraClosed(looper.Token{})
	if s := e.Stats(); s.Dropped != 1 {
		t.Errorf("dropped = %d after close, want 1", s.Dropped)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestEmitter_DropsWhenQueueFull(t *testing.T) {
	sink := &memorySink{gate: make(chan struct{})}
	e, _ := NewEmitter("orion-1", "cam", 1, discard(), sink)

	// One event is held by the worker, one fills the queue, the rest drop.
	for i := 0; i < 10; i++ {
		e.OnCameraError(looper.Token{}, "boom")
	}
	close(sink.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := e.Stats()
	if s.Published+s.Dropped != 10 {
		t.Errorf("published %d + dropped %d != 10", s.Published, s.Dropped)
	}
	if s.Dropped < 8 {
		t.Errorf("dropped = %d, want >= 8", s.Dropped)
	}
}

func TestEmitter_CountsSinkFailures(t *testing.T) {
	sink := &memorySink{err: errors.New("broker down")}
	e, _ := NewEmitter("orion-1", "cam", 4, discard(), sink)
	e.OnCameraClosed(looper.Token{})
	e.Close(context.Background())

	if s := e.Stats(); s.Failed != 1 || s.Published != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEvent_JSON(t *testing.T) {
	ts := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	payload, err := Event{Kind: KindFreeze, InstanceID: "i", CameraID: "c", Message: "Camera failure.", Timestamp: ts}.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["kind"] != "camera_freezed" || m["message"] != "Camera failure." || m["timestamp"] != "2026-10-18T12:00:00Z" {
		t.Errorf("unexpected payload %s", payload)
	}

	empty, _ := Event{Kind: KindClosed}.JSON()
	if strings.Contains(string(empty), "message") {
		t.Errorf("empty message should be omitted: %s", empty)
	}
}

type recordingHandler struct {
	calls  []string
	tokens []looper.Token
}

func (h *recordingHandler) record(tok looper.Token, call string) {
	h.calls = append(h.calls, call)
	h.tokens = append(h.tokens, tok)
}

func (h *recordingHandler) OnCameraError(tok looper.Token, m string) { h.record(tok, "error:"+m) }
func (h *recordingHandler) OnCameraFreezed(tok looper.Token, m string) {
	h.record(tok, "freeze:"+m)
}
func (h *recordingHandler) OnCameraOpening(tok looper.Token, id string) {
	h.record(tok, "opening:"+id)
}
func (h *recordingHandler) OnFirstFrameAvailable(tok looper.Token) { h.record(tok, "first") }
func (h *recordingHandler) OnCameraClosed(tok looper.Token)        { h.record(tok, "closed") }

func TestMulti(t *testing.T) {
	a, b := &recordingHandler{}, &recordingHandler{}
	m := Multi{a, NewLogHandler(discard()), b}

	loop := looper.New("multi")
	defer loop.Quit()

	var task looper.Token
	loop.Sync(func(tok looper.Token) {
		task = tok
		m.OnCameraOpening(tok, "cam")
		m.OnFirstFrameAvailable(tok)
		m.OnCameraError(tok, "x")
		m.OnCameraFreezed(tok, "y")
		m.OnCameraClosed(tok)
	})

	want := "opening:cam,first,error:x,freeze:y,closed"
	for _, h := range []*recordingHandler{a, b} {
		if got := strings.Join(h.calls, ","); got != want {
			t.Errorf("calls = %s, want %s", got, want)
		}
		for i, tok := range h.tokens {
			if tok != task {
				t.Errorf("call %d got token %+v, want the running task token", i, tok)
			}
		}
	}
}

// fakeToken implements mqtt.Token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTTClient struct {
	mu           sync.Mutex
	topics       []string
	payloads     [][]byte
	token        *fakeToken
	disconnected int
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected++
	c.mu.Unlock()
}

func TestMQTTSink_Send(t *testing.T) {
	client := &fakeMQTTClient{}
	sink := newMQTTSink(MQTTConfig{Topic: "care/camera/orion-1", QoS: 1}, client, discard())

	if err := sink.Send(Event{Kind: KindFreeze, Message: "Camera failure."}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.topics[0] != "care/camera/orion-1/camera_freezed" {
		t.Errorf("topic = %s", client.topics[0])
	}
	var ev Event
	if err := json.Unmarshal(client.payloads[0], &ev); err != nil || ev.Message != "Camera failure." {
		t.Errorf("payload = %s (%v)", client.payloads[0], err)
	}

	client.token = &fakeToken{timeout: true}
	if err := sink.Send(Event{Kind: KindClosed}); err == nil {
		t.Error("expected timeout error")
	}
	client.token = &fakeToken{err: errors.New("not authorized")}
	if err := sink.Send(Event{Kind: KindClosed}); err == nil {
		t.Error("expected publish error")
	}

	sink.setConnected(false)
	if err := sink.Send(Event{Kind: KindClosed}); err == nil {
		t.Error("expected not connected error")
	}

	sink.Close()
	sink.Close()
	if client.disconnected != 1 {
		t.Errorf("Disconnect called %d times, want 1", client.disconnected)
	}
	if err := sink.Send(Event{Kind: KindClosed}); err == nil {
		t.Error("expected closed error")
	}
}

func TestDialMQTT_Validation(t *testing.T) {
	if _, err := DialMQTT(MQTTConfig{Topic: "t"}, discard()); err == nil {
		t.Error("expected error without broker")
	}
	if _, err := DialMQTT(MQTTConfig{Broker: "localhost:1883"}, discard()); err == nil {
		t.Error("expected error without topic")
	}
}

func TestWebSocketSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Event, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			var ev Event
			if json.Unmarshal(data, &ev) == nil {
				received <- ev
			}
		}
	}))
	defer srv.Close()

	sink, err := DialWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), discard())
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}

	if err := sink.Send(Event{Kind: KindFirstFrame, CameraID: "cam"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case ev := <-received:
		if ev.Kind != KindFirstFrame || ev.CameraID != "cam" {
			t.Errorf("received %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sink.Send(Event{Kind: KindClosed}); err == nil {
		t.Error("expected error after close")
	}
}

func TestDialWebSocket_BadURL(t *testing.T) {
	if _, err := DialWebSocket("http://localhost:1", discard()); err == nil {
		t.Error("expected scheme error")
	}
}
