package gateway

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

const testIMEI = "863725031194523"

// capturePublisher collects published events and signals each arrival.
type capturePublisher struct {
	ch chan Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{ch: make(chan Event, 16)}
}

func (p *capturePublisher) Publish(e Event) {
	p.ch <- e
}

func (p *capturePublisher) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-p.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// captureRecorder collects telemetry touches.
type captureRecorder struct {
	mu        sync.Mutex
	activity  []string
	voltages  map[string]float64
	positions []string
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{voltages: make(map[string]float64)}
}

func (r *captureRecorder) RecordActivity(imei string) {
	r.mu.Lock()
	r.activity = append(r.activity, imei)
	r.mu.Unlock()
}

func (r *captureRecorder) RecordVoltage(imei string, volts float64) {
	r.mu.Lock()
	r.voltages[imei] = volts
	r.mu.Unlock()
}

func (r *captureRecorder) RecordPosition(imei string) {
	r.mu.Lock()
	r.positions = append(r.positions, imei)
	r.mu.Unlock()
}

// startTestSession wires a session over net.Pipe and runs its read loop.
func startTestSession(t *testing.T, deps SessionDeps) (*Session, net.Conn) {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	s := NewSession(serverEnd, deps)
	go s.Run()

	t.Cleanup(func() {
		clientEnd.Close()
		s.Close()
	})
	return s, clientEnd
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	if err := conn.SetWriteDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set write deadline: %v", err)
	}
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write line: %v", err)
	}
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return buf[:n]
}

func TestSessionBindsIdentityOnFirstPacket(t *testing.T) {
	registry := NewRegistry()
	publisher := newCapturePublisher()
	s, conn := startTestSession(t, SessionDeps{Registry: registry, Publisher: publisher})

	if _, ok := s.Identity(); ok {
		t.Fatal("Identity() bound before any packet")
	}
	if got := s.State(); got != StateAwaitingIdentity {
		t.Fatalf("State() = %v, want awaiting_identity", got)
	}

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,Q0,410#")
	publisher.next(t)

	ident, ok := s.Identity()
	if !ok {
		t.Fatal("Identity() not bound after sign-in")
	}
	if ident.IMEI != testIMEI || ident.DeviceCode != "OM" {
		t.Errorf("Identity() = %+v, want OM/%s", ident, testIMEI)
	}
	if got := s.State(); got != StateIdentified {
		t.Errorf("State() = %v, want identified", got)
	}
	if got := registry.Lookup(testIMEI); got != s {
		t.Errorf("Lookup() = %v, want this session registered", got)
	}
}

func TestSessionSignInPublishesEvent(t *testing.T) {
	publisher := newCapturePublisher()
	_, conn := startTestSession(t, SessionDeps{Publisher: publisher})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,Q0,410#")

	e := publisher.next(t)
	if e.Kind != EventSignIn {
		t.Errorf("Kind = %v, want signin", e.Kind)
	}
	if e.IMEI != testIMEI {
		t.Errorf("IMEI = %q, want %q", e.IMEI, testIMEI)
	}
	if e.BatteryVoltage != nil {
		t.Errorf("BatteryVoltage = %v, want nil", *e.BatteryVoltage)
	}
}

func TestSessionHeartbeatPublishesVoltage(t *testing.T) {
	publisher := newCapturePublisher()
	recorder := newCaptureRecorder()
	_, conn := startTestSession(t, SessionDeps{Publisher: publisher, Recorder: recorder})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",161201150000,H0,1,400,24#")

	e := publisher.next(t)
	if e.Kind != EventHeartbeat {
		t.Errorf("Kind = %v, want heartbeat", e.Kind)
	}
	if e.BatteryVoltage == nil || *e.BatteryVoltage != 4.00 {
		t.Errorf("BatteryVoltage = %v, want 4.00", e.BatteryVoltage)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if got := recorder.voltages[testIMEI]; got != 4.00 {
		t.Errorf("recorded voltage = %v, want 4.00", got)
	}
	if len(recorder.activity) == 0 {
		t.Error("no activity recorded")
	}
}

func TestSessionLockReportGetsAcknowledged(t *testing.T) {
	_, conn := startTestSession(t, SessionDeps{})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",161201150000,L1,1,1497689816,20#")

	frame := readFrame(t, conn)
	if !bytes.HasPrefix(frame, []byte("\xff\xff*CMDS,OM,"+testIMEI+",")) {
		t.Errorf("frame = %q, want outbound envelope", frame)
	}
	if !bytes.HasSuffix(frame, []byte(",Re,L1#")) {
		t.Errorf("frame = %q, want Re,L1 acknowledgement", frame)
	}
}

func TestSessionUnlockReportGetsAcknowledged(t *testing.T) {
	_, conn := startTestSession(t, SessionDeps{})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",161201150000,L0,0,42,1497689816#")

	frame := readFrame(t, conn)
	if !bytes.HasSuffix(frame, []byte(",Re,L0#")) {
		t.Errorf("frame = %q, want Re,L0 acknowledgement", frame)
	}
}

func TestSessionPositionAcknowledgedAndPublished(t *testing.T) {
	publisher := newCapturePublisher()
	recorder := newCaptureRecorder()
	_, conn := startTestSession(t, SessionDeps{Publisher: publisher, Recorder: recorder})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",161201150000,D0,0,140516.00,A,2237.7514,N,11408.6214,E,0.5,180.0,180121,1.2,W,A#")

	frame := readFrame(t, conn)
	if !bytes.HasSuffix(frame, []byte(",Re,D0#")) {
		t.Errorf("frame = %q, want Re,D0 acknowledgement", frame)
	}

	e := publisher.next(t)
	if e.Kind != EventLocation {
		t.Errorf("Kind = %v, want location", e.Kind)
	}
	if e.Lat != "2237.7514" || e.Lng != "11408.6214" {
		t.Errorf("Lat/Lng = %q/%q, want raw NMEA fields", e.Lat, e.Lng)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.positions) != 1 || recorder.positions[0] != testIMEI {
		t.Errorf("recorded positions = %v, want one for %s", recorder.positions, testIMEI)
	}
}

func TestSessionPositionWithoutFixOmitsCoordinates(t *testing.T) {
	publisher := newCapturePublisher()
	_, conn := startTestSession(t, SessionDeps{Publisher: publisher})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,D0,0,140516.00,V,,,,,,,180121,,,N#")

	readFrame(t, conn) // drain the D0 acknowledgement

	e := publisher.next(t)
	if e.Kind != EventLocation {
		t.Errorf("Kind = %v, want location", e.Kind)
	}
	if e.Lat != "" || e.Lng != "" {
		t.Errorf("Lat/Lng = %q/%q, want empty without a fix", e.Lat, e.Lng)
	}
}

func TestSessionSurvivesUndecodableLine(t *testing.T) {
	publisher := newCapturePublisher()
	_, conn := startTestSession(t, SessionDeps{Publisher: publisher})

	sendLine(t, conn, "this is not a packet")
	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,Q0,410#")

	e := publisher.next(t)
	if e.Kind != EventSignIn {
		t.Errorf("Kind = %v, want signin after garbage line", e.Kind)
	}
}

func TestSessionSendUnlockBeforeIdentity(t *testing.T) {
	s, _ := startTestSession(t, SessionDeps{})

	if err := s.SendUnlock(); !errors.Is(err, ErrNotIdentified) {
		t.Errorf("SendUnlock() error = %v, want ErrNotIdentified", err)
	}
	if err := s.SendLocate(); !errors.Is(err, ErrNotIdentified) {
		t.Errorf("SendLocate() error = %v, want ErrNotIdentified", err)
	}
}

func TestSessionSendUnlockWritesCommandFrame(t *testing.T) {
	publisher := newCapturePublisher()
	s, conn := startTestSession(t, SessionDeps{Publisher: publisher})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,Q0,410#")
	publisher.next(t)

	errCh := make(chan error, 1)
	go func() { errCh <- s.SendUnlock() }()

	frame := readFrame(t, conn)
	if err := <-errCh; err != nil {
		t.Fatalf("SendUnlock() error: %v", err)
	}

	text := string(frame)
	if !strings.HasPrefix(text, "\xff\xff*CMDS,OM,"+testIMEI+",") {
		t.Errorf("frame = %q, want outbound envelope", text)
	}
	if !strings.Contains(text, ",L0,0,0,") {
		t.Errorf("frame = %q, want unlock command body", text)
	}
	if strings.Contains(text, ",Re,") {
		t.Errorf("frame = %q, commands must not carry the response marker", text)
	}
	if !strings.HasSuffix(text, "#") {
		t.Errorf("frame = %q, want '#' terminator", text)
	}
}

func TestSessionSendLocateWritesCommandFrame(t *testing.T) {
	publisher := newCapturePublisher()
	s, conn := startTestSession(t, SessionDeps{Publisher: publisher})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,Q0,410#")
	publisher.next(t)

	errCh := make(chan error, 1)
	go func() { errCh <- s.SendLocate() }()

	frame := readFrame(t, conn)
	if err := <-errCh; err != nil {
		t.Fatalf("SendLocate() error: %v", err)
	}
	if !strings.HasSuffix(string(frame), ",D0#") {
		t.Errorf("frame = %q, want locate command", frame)
	}
}

func TestSessionTeardownDeregisters(t *testing.T) {
	registry := NewRegistry()
	publisher := newCapturePublisher()
	s, conn := startTestSession(t, SessionDeps{Registry: registry, Publisher: publisher})

	sendLine(t, conn, "*CMDR,OM,"+testIMEI+",000000000000,Q0,410#")
	publisher.next(t)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for registry.Lookup(testIMEI) != nil {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after connection close")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if err := s.SendUnlock(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SendUnlock() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{StateAwaitingIdentity, "awaiting_identity"},
		{StateIdentified, "identified"},
		{StateClosed, "closed"},
		{SessionState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
