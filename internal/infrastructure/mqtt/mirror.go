package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/omni-lock-gateway/internal/gateway"
)

// Broker is the subset of the client the mirror needs. It exists so
// tests can run the mirror against a fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// eventPayload is the JSON body published for each device event.
type eventPayload struct {
	DeviceID       string   `json:"device_id"`
	Kind           string   `json:"kind"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`
	Lat            string   `json:"lat,omitempty"`
	Lng            string   `json:"lng,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// Mirror publishes gateway events onto the broker and turns command
// topics into session sends, so MQTT consumers get the same surface the
// HTTP API offers.
//
// It implements the gateway's event publisher.
type Mirror struct {
	broker   Broker
	registry *gateway.Registry
	qos      byte
	logger   Logger

	// now is replaceable in tests.
	now func() time.Time
}

var _ gateway.Publisher = (*Mirror)(nil)

// NewMirror creates a mirror over a connected broker.
func NewMirror(broker Broker, registry *gateway.Registry, qos byte) *Mirror {
	return &Mirror{
		broker:   broker,
		registry: registry,
		qos:      qos,
		now:      time.Now,
	}
}

// SetLogger sets a logger for publish and command failures.
func (m *Mirror) SetLogger(logger Logger) {
	m.logger = logger
}

// Start subscribes to the device command topics. Call after the broker
// connection is up.
func (m *Mirror) Start() error {
	if err := m.broker.Subscribe(Topics{}.AllCommands(), m.qos, m.handleCommand); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	return nil
}

// Publish mirrors one device event onto the broker. Sign-in events are
// retained so subscribers joining later still see which devices have
// announced themselves.
func (m *Mirror) Publish(e gateway.Event) {
	body := eventPayload{
		DeviceID:       e.IMEI,
		Kind:           string(e.Kind),
		BatteryVoltage: e.BatteryVoltage,
		Lat:            e.Lat,
		Lng:            e.Lng,
		Timestamp:      m.now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(body)
	if err != nil {
		m.logError("marshal event failed", err)
		return
	}

	topic := Topics{}.DeviceEvent(e.IMEI, string(e.Kind))
	retained := e.Kind == gateway.EventSignIn

	if err := m.broker.Publish(topic, data, m.qos, retained); err != nil {
		m.logError("publish event failed", err)
	}
}

// handleCommand resolves a command topic to a connected session and
// triggers the matching send. The payload is ignored; the topic carries
// everything.
func (m *Mirror) handleCommand(topic string, _ []byte) error {
	imei, action, err := ParseCommandTopic(topic)
	if err != nil {
		return err
	}

	session := m.registry.Lookup(imei)
	if session == nil {
		return fmt.Errorf("device %s not connected", imei)
	}

	switch action {
	case ActionUnlock:
		err = session.SendUnlock()
	case ActionLocate:
		err = session.SendLocate()
	}
	if err != nil {
		if errors.Is(err, gateway.ErrNotIdentified) || errors.Is(err, gateway.ErrSessionClosed) {
			return fmt.Errorf("device %s: %w", imei, err)
		}
		return fmt.Errorf("send %s to %s: %w", action, imei, err)
	}
	return nil
}

func (m *Mirror) logError(msg string, err error) {
	if m.logger != nil {
		m.logger.Error(msg, "error", err)
	}
}
