package gateway

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/omni-lock-gateway/internal/protocol"
)

const (
	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 5 * time.Second

	// maxLineBytes is the largest inbound line accepted before the
	// connection is dropped. Real packets are well under 100 bytes.
	maxLineBytes = 4096
)

// SessionState tracks a session through its lifecycle.
type SessionState int

// Session states.
const (
	// StateAwaitingIdentity means no packet has decoded yet; the device
	// is connected but unknown.
	StateAwaitingIdentity SessionState = iota

	// StateIdentified means the session is bound to a device identity
	// and registered.
	StateIdentified

	// StateClosed means the connection has been torn down.
	StateClosed
)

// String returns a human-readable state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionDeps holds the collaborators a session needs. Registry is
// required; the rest default to no-ops when nil.
type SessionDeps struct {
	Registry  *Registry
	Publisher Publisher
	Recorder  Recorder
	Logger    Logger
}

// Session is one device connection.
//
// The read loop runs on its own goroutine and processes lines in order.
// SendUnlock and SendLocate may be called from any goroutine; a write
// mutex serialises outbound frames against read-loop replies.
type Session struct {
	conn      net.Conn
	registry  *Registry
	publisher Publisher
	recorder  Recorder
	logger    Logger

	// writeMu serialises outbound frames.
	writeMu sync.Mutex

	// mu guards state and identity.
	mu       sync.RWMutex
	state    SessionState
	identity protocol.DeviceIdentity
}

// NewSession wraps a connection in a session. The caller runs the read
// loop via Run.
func NewSession(conn net.Conn, deps SessionDeps) *Session {
	s := &Session{
		conn:      conn,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// Run reads lines from the connection until it closes or errors, then
// tears the session down. It blocks; callers run it on a goroutine.
func (s *Session) Run() {
	defer s.teardown()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debug("read loop ended", "remote", s.conn.RemoteAddr().String(), "error", err)
	}
}

// handleLine decodes and dispatches one inbound line. Decode failures are
// logged with the raw bytes and swallowed; a misbehaving device must not
// lose its connection over one bad line.
func (s *Session) handleLine(line []byte) {
	imei, identified := s.imei()
	if identified {
		s.recorder.RecordActivity(imei)
	}

	pkt, err := protocol.DecodePacket(line)
	if err != nil {
		s.logger.Warn("undecodable line",
			"remote", s.conn.RemoteAddr().String(),
			"raw", hex.EncodeToString(line),
			"error", err)
		return
	}

	s.bindIdentity(pkt.Identity)
	if !identified {
		// First decodable line: the activity touch above was skipped
		// because the identity was not bound yet.
		s.recorder.RecordActivity(pkt.Identity.IMEI)
	}

	s.dispatch(pkt)
}

// bindIdentity binds the session to the packet's identity. Every packet
// carries the identity; registration happens on the first one and again
// if the IMEI ever changes mid-connection.
func (s *Session) bindIdentity(id protocol.DeviceIdentity) {
	s.mu.Lock()
	changed := s.state == StateAwaitingIdentity || s.identity.IMEI != id.IMEI
	if s.state == StateAwaitingIdentity {
		s.state = StateIdentified
	}
	s.identity = id
	s.mu.Unlock()

	if changed {
		s.registry.Register(id.IMEI, s)
	}
}

// dispatch routes a decoded packet to its handler.
func (s *Session) dispatch(pkt *protocol.Packet) {
	imei := pkt.Identity.IMEI

	switch data := pkt.Data.(type) {
	case protocol.SignIn:
		s.logger.Info("device sign-in", "imei", imei, "voltage", data.Voltage)
		s.publisher.Publish(Event{Kind: EventSignIn, IMEI: imei})

	case protocol.Heartbeat:
		s.recorder.RecordVoltage(imei, data.Voltage)
		v := data.Voltage
		s.publisher.Publish(Event{Kind: EventHeartbeat, IMEI: imei, BatteryVoltage: &v})

	case protocol.Lock:
		s.logger.Info("device locked", "imei", imei, "user_id", string(data.UserID))
		s.reply("L1")

	case protocol.Unlock:
		s.logger.Info("device unlocked", "imei", imei, "state", data.Locked)
		s.reply("L0")

	case protocol.Position:
		s.reply("D0")
		s.recorder.RecordPosition(imei)

		event := Event{Kind: EventLocation, IMEI: imei}
		if data.Lat != nil && data.Lon != nil {
			event.Lat = string(data.Lat)
			event.Lng = string(data.Lon)
		}
		s.publisher.Publish(event)

	default:
		s.logger.Debug("unhandled command",
			"imei", imei, "command", pkt.Command.String(), "code", pkt.Code)
	}
}

// reply sends a Re,-framed acknowledgement for the packet being handled.
// Reply timestamps use the gateway clock, not the device clock, so a
// device with an unset clock still gets acknowledged.
func (s *Session) reply(body string) {
	ident, _ := s.Identity()

	frame, err := protocol.EncodeResponse(ident, time.Now(), body)
	if err != nil {
		s.logger.Error("encode response failed", "imei", ident.IMEI, "error", err)
		return
	}
	if err := s.write(frame); err != nil {
		s.logger.Error("write response failed", "imei", ident.IMEI, "error", err)
	}
}

// SendUnlock asks the lock to open. The fixed user id and current unix
// time fill the fields the firmware expects in an unlock command.
//
// Returns:
//   - error: ErrNotIdentified before identity binding, ErrSessionClosed
//     after teardown, or the write error
func (s *Session) SendUnlock() error {
	now := time.Now()
	body := fmt.Sprintf("L0,0,0,%d", now.Unix())
	return s.sendCommand(body, now)
}

// SendLocate asks the lock to report its position. The report arrives
// later as a normal inbound position packet.
//
// Returns:
//   - error: ErrNotIdentified before identity binding, ErrSessionClosed
//     after teardown, or the write error
func (s *Session) SendLocate() error {
	return s.sendCommand("D0", time.Now())
}

// sendCommand builds and writes an outbound command frame.
func (s *Session) sendCommand(body string, now time.Time) error {
	ident, state := s.snapshot()
	switch state {
	case StateClosed:
		return ErrSessionClosed
	case StateAwaitingIdentity:
		return ErrNotIdentified
	}

	frame, err := protocol.EncodeCommand(ident, now, body)
	if err != nil {
		return err
	}

	s.logger.Info("sending command", "imei", ident.IMEI, "body", body)
	return s.write(frame)
}

// write sends one frame with a deadline, serialised against other writers.
func (s *Session) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Identity returns the bound device identity. The second return is false
// while the session is still awaiting its first decodable packet.
func (s *Session) Identity() (protocol.DeviceIdentity, bool) {
	ident, state := s.snapshot()
	return ident, state != StateAwaitingIdentity
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Close tears the connection down. The read loop observes the closed
// socket and finishes teardown. Safe to call multiple times.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) snapshot() (protocol.DeviceIdentity, SessionState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.state
}

func (s *Session) imei() (string, bool) {
	ident, state := s.snapshot()
	if state == StateAwaitingIdentity || ident.IMEI == "" {
		return "", false
	}
	return ident.IMEI, true
}

// teardown marks the session closed and removes it from the registry.
func (s *Session) teardown() {
	s.mu.Lock()
	wasIdentified := s.state == StateIdentified
	s.state = StateClosed
	ident := s.identity
	s.mu.Unlock()

	s.conn.Close()

	if wasIdentified {
		s.registry.Deregister(ident.IMEI, s)
	}
	s.logger.Info("connection closed",
		"remote", s.conn.RemoteAddr().String(), "imei", ident.IMEI)
}
