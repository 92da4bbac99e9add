package protocol

import (
	"bytes"
	"fmt"
	"time"
)

// outboundPrefix starts every gateway-to-device frame. The two 0xFF bytes
// are a wake-up marker the firmware requires before the ASCII envelope.
var outboundPrefix = []byte{0xFF, 0xFF, '*', 'C', 'M', 'D', 'S', ','}

// EncodeCommand builds a gateway-to-device command frame.
//
// The body is free text in the firmware's command grammar, e.g.
// "L0,0,0,1497689816" for an unlock request or "D0" for a locate request.
//
// Parameters:
//   - identity: Target device identity (device code + IMEI)
//   - ts: Frame timestamp; must be concrete, not the absent sentinel
//   - body: Command body, emitted verbatim
//
// Returns:
//   - []byte: Complete wire frame including prefix and '#' terminator
//   - error: ErrEncode if ts is the zero time
func EncodeCommand(identity DeviceIdentity, ts time.Time, body string) ([]byte, error) {
	return encodeFrame(identity, ts, "", body)
}

// EncodeResponse builds a gateway-to-device acknowledgement frame.
//
// Responses share the command envelope but carry a literal "Re," marker
// before the body. The device matches them to its own L0/L1/D0 requests.
//
// Parameters:
//   - identity: Target device identity
//   - ts: Frame timestamp; must be concrete
//   - body: Response body, e.g. "L1"
//
// Returns:
//   - []byte: Complete wire frame
//   - error: ErrEncode if ts is the zero time
func EncodeResponse(identity DeviceIdentity, ts time.Time, body string) ([]byte, error) {
	return encodeFrame(identity, ts, "Re,", body)
}

// encodeFrame assembles the shared outbound envelope.
func encodeFrame(identity DeviceIdentity, ts time.Time, marker, body string) ([]byte, error) {
	if ts.IsZero() {
		return nil, fmt.Errorf("%w: cannot encode absent timestamp", ErrEncode)
	}

	var buf bytes.Buffer
	buf.Write(outboundPrefix)
	buf.WriteString(identity.DeviceCode)
	buf.WriteByte(',')
	buf.WriteString(identity.IMEI)
	buf.WriteByte(',')
	buf.WriteString(encodeDateTime(ts))
	buf.WriteByte(',')
	buf.WriteString(marker)
	buf.WriteString(body)
	buf.WriteByte('#')
	return buf.Bytes(), nil
}
