package protocol

import "errors"

// Domain errors for the OmniLock wire codec.
var (
	// ErrMalformedPacket is returned when a structural expectation is not
	// met: missing *CMDR prefix, missing required separator, missing #
	// terminator, or an enum value with no match.
	ErrMalformedPacket = errors.New("protocol: malformed packet")

	// ErrMalformedField is returned when a sub-value cannot be decoded per
	// its codec: non-digit bytes in a fixed-width field, an unparseable
	// integer, or an invalid calendar date.
	ErrMalformedField = errors.New("protocol: malformed field")

	// ErrEncode is returned when an outbound value does not satisfy the
	// encoder's contract, e.g. an absent timestamp where a concrete one
	// is required.
	ErrEncode = errors.New("protocol: encode failed")
)
