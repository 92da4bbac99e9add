// Package gateway accepts TCP connections from OmniLock devices and keeps
// one Session per connected lock.
//
// A Session starts without an identity. The first packet that decodes
// carries the device code and IMEI; the session binds to that identity and
// registers itself in the Registry, replacing any previous session for the
// same IMEI. Lines that fail to decode are logged and skipped, the
// connection stays open.
//
// Inbound packets are handled in order on the connection's read goroutine.
// Lock, unlock and position reports are acknowledged on the wire; sign-in,
// heartbeat and position reports are published as events. Outbound commands
// (SendUnlock, SendLocate) may be issued from any goroutine; a per-session
// write mutex keeps frames from interleaving with read-loop replies.
package gateway
