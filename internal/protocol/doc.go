// Package protocol implements the OmniLock wire codec.
//
// OmniLock GPS electronic locks speak an ASCII/binary hybrid line protocol
// over persistent TCP connections. Inbound packets (device to gateway) are
// framed as:
//
//	*CMDR,<devicecode>,<imei>,<yymmddhhmmss>,<cmd>,<payload>#
//
// where <cmd> is a two-byte command code and <payload> is a comma-delimited
// field list whose shape depends on the command. Outbound frames (gateway
// to device) carry a two-byte binary prefix:
//
//	\xFF\xFF*CMDS,<devicecode>,<imei>,<yymmddhhmmss>,<body>#      command
//	\xFF\xFF*CMDS,<devicecode>,<imei>,<yymmddhhmmss>,Re,<body>#   response
//
// The codec is deliberately permissive on the command code: an unknown
// two-byte code decodes to CmdUnrecognized with the raw payload preserved,
// because deployed firmware emits undocumented codes. Everything else is
// strict and fails with ErrMalformedPacket or ErrMalformedField.
//
// Timestamps use a two-digit year expanded with the current century, and
// the all-zero field "000000000000" is a sentinel meaning "absent" — it is
// represented as the zero time.Time, never as an error or an epoch date.
//
// # Usage
//
//	pkt, err := protocol.DecodePacket(line)
//	if err != nil {
//	    // log and skip the line; the connection stays up
//	}
//
//	frame, err := protocol.EncodeResponse(pkt.Identity, time.Now(), "L1")
package protocol
