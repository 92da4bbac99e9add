package mqtt

import (
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/omni-lock-gateway/internal/gateway"
)

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakeBroker records publishes and hands subscriptions back to the test.
type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMsg
	handlers  map[string]MessageHandler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMsg{topic, payload, qos, retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) last(t *testing.T) publishedMsg {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		t.Fatal("nothing published")
	}
	return b.published[len(b.published)-1]
}

// identifiedSession runs a session over net.Pipe and feeds it a sign-in
// so it registers. The returned conn is the device end.
func identifiedSession(t *testing.T, registry *gateway.Registry) net.Conn {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	s := gateway.NewSession(serverEnd, gateway.SessionDeps{Registry: registry})
	go s.Run()
	t.Cleanup(func() {
		clientEnd.Close()
		s.Close()
	})

	clientEnd.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := clientEnd.Write([]byte("*CMDR,OM,863725031194523,000000000000,Q0,410#\n")); err != nil {
		t.Fatalf("write sign-in: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for registry.Lookup("863725031194523") == nil {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return clientEnd
}

func TestMirrorPublishesHeartbeat(t *testing.T) {
	broker := newFakeBroker()
	m := NewMirror(broker, gateway.NewRegistry(), 1)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	volts := 4.1
	m.Publish(gateway.Event{
		Kind:           gateway.EventHeartbeat,
		IMEI:           "863725031194523",
		BatteryVoltage: &volts,
	})

	msg := broker.last(t)
	if msg.topic != "omnilock/event/863725031194523/heartbeat" {
		t.Errorf("topic = %q, want event topic", msg.topic)
	}
	if msg.retained {
		t.Error("heartbeat published retained, want not retained")
	}
	if msg.qos != 1 {
		t.Errorf("qos = %d, want 1", msg.qos)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if body["device_id"] != "863725031194523" {
		t.Errorf("device_id = %v", body["device_id"])
	}
	if body["battery_voltage"] != 4.1 {
		t.Errorf("battery_voltage = %v, want 4.1", body["battery_voltage"])
	}
	if body["kind"] != "heartbeat" {
		t.Errorf("kind = %v, want heartbeat", body["kind"])
	}
}

func TestMirrorRetainsSignIn(t *testing.T) {
	broker := newFakeBroker()
	m := NewMirror(broker, gateway.NewRegistry(), 1)

	m.Publish(gateway.Event{Kind: gateway.EventSignIn, IMEI: "863725031194523"})

	msg := broker.last(t)
	if !msg.retained {
		t.Error("sign-in published not retained, want retained")
	}
	if msg.topic != "omnilock/event/863725031194523/signin" {
		t.Errorf("topic = %q", msg.topic)
	}
}

func TestMirrorPublishesLocation(t *testing.T) {
	broker := newFakeBroker()
	m := NewMirror(broker, gateway.NewRegistry(), 0)

	m.Publish(gateway.Event{
		Kind: gateway.EventLocation,
		IMEI: "863725031194523",
		Lat:  "2237.7514",
		Lng:  "11408.6214",
	})

	var body map[string]any
	json.Unmarshal(broker.last(t).payload, &body)
	if body["lat"] != "2237.7514" || body["lng"] != "11408.6214" {
		t.Errorf("lat/lng = %v/%v", body["lat"], body["lng"])
	}
}

func TestMirrorStartSubscribesToCommands(t *testing.T) {
	broker := newFakeBroker()
	m := NewMirror(broker, gateway.NewRegistry(), 1)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if _, ok := broker.handlers["omnilock/command/+/+"]; !ok {
		t.Errorf("subscribed topics = %v, want command wildcard", broker.handlers)
	}
}

func TestMirrorUnlockCommandReachesSession(t *testing.T) {
	registry := gateway.NewRegistry()
	conn := identifiedSession(t, registry)

	broker := newFakeBroker()
	m := NewMirror(broker, registry, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		handler := broker.handlers["omnilock/command/+/+"]
		errCh <- handler("omnilock/command/863725031194523/unlock", nil)
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read command frame: %v", err)
	}
	if handlerErr := <-errCh; handlerErr != nil {
		t.Fatalf("handler error: %v", handlerErr)
	}

	frame := string(buf[:n])
	if !strings.Contains(frame, ",L0,0,0,") {
		t.Errorf("frame = %q, want unlock command body", frame)
	}
}

func TestMirrorLocateCommandReachesSession(t *testing.T) {
	registry := gateway.NewRegistry()
	conn := identifiedSession(t, registry)

	broker := newFakeBroker()
	m := NewMirror(broker, registry, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		handler := broker.handlers["omnilock/command/+/+"]
		errCh <- handler("omnilock/command/863725031194523/locate", nil)
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read command frame: %v", err)
	}
	if handlerErr := <-errCh; handlerErr != nil {
		t.Fatalf("handler error: %v", handlerErr)
	}

	if !strings.HasSuffix(string(buf[:n]), ",D0#") {
		t.Errorf("frame = %q, want locate command", buf[:n])
	}
}

func TestMirrorCommandForUnknownDevice(t *testing.T) {
	broker := newFakeBroker()
	m := NewMirror(broker, gateway.NewRegistry(), 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	handler := broker.handlers["omnilock/command/+/+"]
	if err := handler("omnilock/command/000000000000000/unlock", nil); err == nil {
		t.Error("handler returned nil for unknown device, want error")
	}
}

func TestMirrorCommandMalformedTopic(t *testing.T) {
	broker := newFakeBroker()
	m := NewMirror(broker, gateway.NewRegistry(), 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	handler := broker.handlers["omnilock/command/+/+"]
	if err := handler("omnilock/command/863725031194523/ring", nil); err == nil {
		t.Error("handler returned nil for unknown action, want error")
	}
}
