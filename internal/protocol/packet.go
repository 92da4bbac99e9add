package protocol

import (
	"bytes"
	"fmt"
	"time"
)

// inboundPrefix starts every device-to-gateway packet.
var inboundPrefix = []byte("*CMDR,")

// Command identifies the inbound packet kind.
type Command uint8

// Inbound command kinds. CmdUnrecognized covers any two-byte code absent
// from the table; deployed firmware emits undocumented codes and they must
// not be treated as errors.
const (
	CmdUnrecognized Command = iota
	CmdSignIn
	CmdHeartbeat
	CmdLockStatus
	CmdRinging
	CmdLock
	CmdUnlock
	CmdVersion
	CmdPosition
	CmdUpdate
)

// String returns a human-readable command name for logging.
func (c Command) String() string {
	switch c {
	case CmdSignIn:
		return "signin"
	case CmdHeartbeat:
		return "heartbeat"
	case CmdLockStatus:
		return "lock_status"
	case CmdRinging:
		return "ringing"
	case CmdLock:
		return "lock"
	case CmdUnlock:
		return "unlock"
	case CmdVersion:
		return "version"
	case CmdPosition:
		return "position"
	case CmdUpdate:
		return "update"
	default:
		return "unrecognized"
	}
}

// commandForCode maps a raw two-byte command code to its kind.
func commandForCode(code string) Command {
	switch code {
	case "Q0":
		return CmdSignIn
	case "H0":
		return CmdHeartbeat
	case "S5":
		return CmdLockStatus
	case "S8":
		return CmdRinging
	case "L1":
		return CmdLock
	case "L0":
		return CmdUnlock
	case "G0":
		return CmdVersion
	case "D0":
		return CmdPosition
	case "U0":
		return CmdUpdate
	default:
		return CmdUnrecognized
	}
}

// DeviceIdentity identifies a lock on the wire.
//
// DeviceCode is the short vendor code (e.g. "OM"); IMEI is the hardware
// identifier and the primary key for the session registry.
type DeviceIdentity struct {
	DeviceCode string
	IMEI       string
}

// LockState reports whether the shackle is engaged.
type LockState string

// Lock states as carried by the S5/L0 payloads.
const (
	LockStateUnlocked LockState = "unlocked"
	LockStateLocked   LockState = "locked"
)

// FixStatus reports GPS fix validity in a position payload.
type FixStatus string

// Fix statuses: V = no fix, A = valid fix.
const (
	FixInvalid FixStatus = "invalid"
	FixActive  FixStatus = "active"
)

// Hemisphere is a latitude or longitude hemisphere indicator.
// An empty wire field decodes to HemisphereInvalid.
type Hemisphere string

// Hemisphere values.
const (
	HemisphereInvalid Hemisphere = "invalid"
	HemisphereNorth   Hemisphere = "north"
	HemisphereSouth   Hemisphere = "south"
	HemisphereEast    Hemisphere = "east"
	HemisphereWest    Hemisphere = "west"
)

// PositionMode is the GPS receiver operating mode indicator.
type PositionMode string

// Position modes.
const (
	ModeAutomatic    PositionMode = "automatic"
	ModeDifferential PositionMode = "differential"
	ModeEstimation   PositionMode = "estimation"
	ModeInvalid      PositionMode = "invalid"
)

// Payload is the per-command payload variant of an inbound packet.
type Payload interface {
	isPayload()
}

// SignIn is the Q0 payload: the device announcing itself after connecting.
type SignIn struct {
	Voltage float64 // battery volts
}

// Heartbeat is the H0 payload: periodic liveness and battery report.
type Heartbeat struct {
	Locked    bool
	Voltage   float64 // battery volts
	GSMSignal int
}

// LockStatus is the S5 payload: a state snapshot sent on demand.
type LockStatus struct {
	Voltage   float64
	GSMSignal []byte
	Reserved  []byte
	Locked    LockState
	Reserved2 []byte
}

// Ringing is the S8 payload: the lock's buzzer was activated.
type Ringing struct {
	Seconds  []byte
	Reserved []byte
}

// Lock is the L1 payload: the device reports it has been locked.
type Lock struct {
	UserID            []byte
	UnlockedAt        []byte
	RidingTimeMinutes []byte
}

// Unlock is the L0 payload: the device reports the result of an unlock.
type Unlock struct {
	Locked     LockState
	UserID     []byte
	UnlockedAt []byte
}

// Version is the G0 payload: firmware version report.
type Version struct {
	Version     string
	CompileTime string
}

// Position is the D0 payload, a thinly wrapped NMEA-style sentence.
//
// Lat, Lon, GroundRate, Heading, Date, MagDegrees and MagDirection use
// empty-means-absent wire semantics; absent fields are nil.
type Position struct {
	Time       []byte
	Status     FixStatus
	Lat        []byte
	LatH       Hemisphere
	Lon        []byte
	LonH       Hemisphere
	GroundRate []byte
	Heading    []byte
	Date       []byte // raw ddmmyy, absent if empty
	MagDegrees []byte
	MagDir     []byte
	Mode       PositionMode
}

// Raw is the uninterpreted payload of an unrecognized or U0 command.
type Raw struct {
	Bytes []byte
}

func (SignIn) isPayload()     {}
func (Heartbeat) isPayload()  {}
func (LockStatus) isPayload() {}
func (Ringing) isPayload()    {}
func (Lock) isPayload()       {}
func (Unlock) isPayload()     {}
func (Version) isPayload()    {}
func (Position) isPayload()   {}
func (Raw) isPayload()        {}

// Packet is a fully decoded inbound line.
type Packet struct {
	Identity DeviceIdentity

	// Timestamp is the device clock at send time. The zero value means
	// the device sent the all-zero sentinel (clock unset).
	Timestamp time.Time

	Command Command

	// Code is the raw two-byte command code as received. For recognised
	// commands it matches the table; for CmdUnrecognized it is the only
	// record of what the device sent.
	Code string

	Data Payload
}

// DecodePacket decodes one framed line into a Packet.
//
// The caller hands in a single line as delivered by newline framing,
// without the trailing '\n'. A synthetic "\r\n" is appended before the
// '#' terminator is located; historical payloads assume that trailing
// CRLF exists and removing it shifts payload truncation by one byte for
// some commands. Bytes after the terminator are ignored.
//
// Parameters:
//   - line: One protocol line, e.g. *CMDR,OM,863...,000000000000,Q0,410#
//
// Returns:
//   - *Packet: Decoded packet; Data holds the per-command variant
//   - error: ErrMalformedPacket or ErrMalformedField describing the
//     offending field and raw bytes
func DecodePacket(line []byte) (*Packet, error) {
	buf := make([]byte, 0, len(line)+2)
	buf = append(buf, line...)
	buf = append(buf, '\r', '\n')

	s := &fieldScanner{buf: buf}

	if err := s.expect(inboundPrefix, "prefix"); err != nil {
		return nil, err
	}

	deviceCode, err := s.comma("devicecode")
	if err != nil {
		return nil, err
	}
	imei, err := s.comma("imei")
	if err != nil {
		return nil, err
	}

	dtTok, err := s.comma("datetime")
	if err != nil {
		return nil, err
	}
	ts, err := decodeDateTime(dtTok, "datetime")
	if err != nil {
		return nil, err
	}

	codeTok, err := s.take(2, "cmd")
	if err != nil {
		return nil, err
	}
	code := string(codeTok)
	if err := s.expect([]byte{','}, "cmd"); err != nil {
		return nil, err
	}

	// Payload runs to the '#' terminator. The terminator is consumed and
	// excluded; trailing bytes (including the synthetic CRLF) are dropped.
	term := bytes.IndexByte(s.buf, '#')
	if term < 0 {
		return nil, fmt.Errorf("%w: field data: missing '#' terminator in %q", ErrMalformedPacket, s.buf)
	}
	payload := s.buf[:term]

	cmd := commandForCode(code)
	data, err := decodePayload(cmd, payload)
	if err != nil {
		return nil, err
	}

	return &Packet{
		Identity: DeviceIdentity{
			DeviceCode: string(deviceCode),
			IMEI:       string(imei),
		},
		Timestamp: ts,
		Command:   cmd,
		Code:      code,
		Data:      data,
	}, nil
}

// decodePayload dispatches payload decoding on the command kind.
func decodePayload(cmd Command, payload []byte) (Payload, error) {
	switch cmd {
	case CmdSignIn:
		return decodeSignIn(payload)
	case CmdHeartbeat:
		return decodeHeartbeat(payload)
	case CmdLockStatus:
		return decodeLockStatus(payload)
	case CmdRinging:
		return decodeRinging(payload)
	case CmdLock:
		return decodeLock(payload)
	case CmdUnlock:
		return decodeUnlock(payload)
	case CmdVersion:
		return decodeVersion(payload)
	case CmdPosition:
		return decodePosition(payload)
	default:
		// Update and unrecognized codes keep the raw payload untouched.
		return Raw{Bytes: payload}, nil
	}
}

func decodeSignIn(payload []byte) (Payload, error) {
	voltage, err := decodeVoltage(payload, "voltage")
	if err != nil {
		return nil, err
	}
	return SignIn{Voltage: voltage}, nil
}

func decodeHeartbeat(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	lockedTok, err := s.comma("locked")
	if err != nil {
		return nil, err
	}
	locked, err := decodeBoolFlag(lockedTok, "locked")
	if err != nil {
		return nil, err
	}

	voltTok, err := s.comma("voltage")
	if err != nil {
		return nil, err
	}
	voltage, err := decodeVoltage(voltTok, "voltage")
	if err != nil {
		return nil, err
	}

	gsm, err := decodeDigits(s.rest(), "gsmsignal")
	if err != nil {
		return nil, err
	}

	return Heartbeat{Locked: locked, Voltage: voltage, GSMSignal: gsm}, nil
}

func decodeLockStatus(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	voltTok, err := s.comma("voltage")
	if err != nil {
		return nil, err
	}
	voltage, err := decodeVoltage(voltTok, "voltage")
	if err != nil {
		return nil, err
	}

	gsm, err := s.comma("gsmsignal")
	if err != nil {
		return nil, err
	}
	reserved, err := s.comma("reserved")
	if err != nil {
		return nil, err
	}

	lockedTok, err := s.comma("locked")
	if err != nil {
		return nil, err
	}
	locked, err := decodeLockState(lockedTok, "locked")
	if err != nil {
		return nil, err
	}

	return LockStatus{
		Voltage:   voltage,
		GSMSignal: gsm,
		Reserved:  reserved,
		Locked:    locked,
		Reserved2: s.rest(),
	}, nil
}

func decodeRinging(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	seconds, err := s.comma("seconds")
	if err != nil {
		return nil, err
	}
	return Ringing{Seconds: seconds, Reserved: s.rest()}, nil
}

func decodeLock(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	userID, err := s.comma("userid")
	if err != nil {
		return nil, err
	}
	unlockedAt, err := s.comma("unlocked_at")
	if err != nil {
		return nil, err
	}
	return Lock{UserID: userID, UnlockedAt: unlockedAt, RidingTimeMinutes: s.rest()}, nil
}

func decodeUnlock(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	lockedTok, err := s.comma("locked")
	if err != nil {
		return nil, err
	}
	locked, err := decodeLockState(lockedTok, "locked")
	if err != nil {
		return nil, err
	}

	userID, err := s.comma("userid")
	if err != nil {
		return nil, err
	}
	return Unlock{Locked: locked, UserID: userID, UnlockedAt: s.rest()}, nil
}

func decodeVersion(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	version, err := s.comma("version")
	if err != nil {
		return nil, err
	}
	return Version{Version: string(version), CompileTime: string(s.rest())}, nil
}

// positionPrefix is a constant first field every D0 payload starts with.
var positionPrefix = []byte("0,")

func decodePosition(payload []byte) (Payload, error) {
	s := &fieldScanner{buf: payload}

	if err := s.expect(positionPrefix, "const"); err != nil {
		return nil, err
	}

	tm, err := s.comma("time")
	if err != nil {
		return nil, err
	}

	statusTok, err := s.comma("status")
	if err != nil {
		return nil, err
	}
	status, err := decodeFixStatus(statusTok)
	if err != nil {
		return nil, err
	}

	lat, err := s.comma("lat")
	if err != nil {
		return nil, err
	}
	latHTok, err := s.comma("lat_h")
	if err != nil {
		return nil, err
	}
	latH, err := decodeHemisphere(latHTok, "lat_h", HemisphereNorth, 'N', HemisphereSouth, 'S')
	if err != nil {
		return nil, err
	}

	lon, err := s.comma("lon")
	if err != nil {
		return nil, err
	}
	lonHTok, err := s.comma("lon_h")
	if err != nil {
		return nil, err
	}
	lonH, err := decodeHemisphere(lonHTok, "lon_h", HemisphereEast, 'E', HemisphereWest, 'W')
	if err != nil {
		return nil, err
	}

	groundRate, err := s.comma("ground_rate")
	if err != nil {
		return nil, err
	}
	heading, err := s.comma("heading")
	if err != nil {
		return nil, err
	}
	date, err := s.comma("date")
	if err != nil {
		return nil, err
	}
	magDegrees, err := s.comma("mag_degrees")
	if err != nil {
		return nil, err
	}
	magDir, err := s.comma("mag_direction")
	if err != nil {
		return nil, err
	}

	mode, err := decodeMode(s.rest())
	if err != nil {
		return nil, err
	}

	return Position{
		Time:       tm,
		Status:     status,
		Lat:        optional(lat),
		LatH:       latH,
		Lon:        optional(lon),
		LonH:       lonH,
		GroundRate: optional(groundRate),
		Heading:    optional(heading),
		Date:       optional(date),
		MagDegrees: optional(magDegrees),
		MagDir:     optional(magDir),
		Mode:       mode,
	}, nil
}

// decodeBoolFlag decodes the H0 locked flag: "0" false, "1" true.
func decodeBoolFlag(tok []byte, field string) (bool, error) {
	switch string(tok) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: field %s: no enum match for %q", ErrMalformedPacket, field, tok)
	}
}

// decodeLockState decodes the ASCII lock state enum: "0" unlocked, "1" locked.
func decodeLockState(tok []byte, field string) (LockState, error) {
	switch string(tok) {
	case "0":
		return LockStateUnlocked, nil
	case "1":
		return LockStateLocked, nil
	default:
		return "", fmt.Errorf("%w: field %s: no enum match for %q", ErrMalformedPacket, field, tok)
	}
}

func decodeFixStatus(tok []byte) (FixStatus, error) {
	switch string(tok) {
	case "V":
		return FixInvalid, nil
	case "A":
		return FixActive, nil
	default:
		return "", fmt.Errorf("%w: field status: no enum match for %q", ErrMalformedPacket, tok)
	}
}

// decodeHemisphere decodes a hemisphere indicator where an empty field
// means "invalid" (no fix).
func decodeHemisphere(tok []byte, field string, pos Hemisphere, posByte byte, neg Hemisphere, negByte byte) (Hemisphere, error) {
	switch {
	case len(tok) == 0:
		return HemisphereInvalid, nil
	case len(tok) == 1 && tok[0] == posByte:
		return pos, nil
	case len(tok) == 1 && tok[0] == negByte:
		return neg, nil
	default:
		return "", fmt.Errorf("%w: field %s: no enum match for %q", ErrMalformedPacket, field, tok)
	}
}

func decodeMode(tok []byte) (PositionMode, error) {
	switch string(tok) {
	case "A":
		return ModeAutomatic, nil
	case "D":
		return ModeDifferential, nil
	case "E":
		return ModeEstimation, nil
	case "N":
		return ModeInvalid, nil
	default:
		return "", fmt.Errorf("%w: field mode: no enum match for %q", ErrMalformedPacket, tok)
	}
}
