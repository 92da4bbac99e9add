package gateway

// EventKind identifies a device event published to downstream consumers.
type EventKind string

// Event kinds published by sessions.
const (
	// EventSignIn is published when a device announces itself.
	EventSignIn EventKind = "signin"

	// EventHeartbeat is published on each periodic liveness report and
	// carries the battery voltage.
	EventHeartbeat EventKind = "heartbeat"

	// EventLocation is published on each position report. Lat and Lng are
	// set only when the device had a GPS fix.
	EventLocation EventKind = "location"
)

// Event is a device event as published to the webhook and MQTT consumers.
//
// Lat and Lng are the raw NMEA ddmm.mmmm fields as received, empty when
// the device reported no fix.
type Event struct {
	Kind           EventKind
	IMEI           string
	BatteryVoltage *float64
	Lat            string
	Lng            string
}

// Publisher receives device events. Publish must not block the caller for
// long; it runs on the connection's read goroutine.
type Publisher interface {
	Publish(e Event)
}

// MultiPublisher fans each event out to every publisher in order.
type MultiPublisher []Publisher

// Publish implements Publisher.
func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// Recorder receives per-device activity for the metrics snapshot.
type Recorder interface {
	// RecordActivity is called for every line received from a device,
	// decodable or not.
	RecordActivity(imei string)

	// RecordVoltage is called with the battery voltage from heartbeats.
	RecordVoltage(imei string, volts float64)

	// RecordPosition is called for every position report.
	RecordPosition(imei string)
}

// Logger defines the logging interface used by the gateway.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// noopPublisher discards events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// noopRecorder discards activity.
type noopRecorder struct{}

func (noopRecorder) RecordActivity(string)         {}
func (noopRecorder) RecordVoltage(string, float64) {}
func (noopRecorder) RecordPosition(string)         {}
