package gateway

import "errors"

var (
	// ErrNotIdentified is returned when a command is sent to a session
	// that has not yet bound a device identity.
	ErrNotIdentified = errors.New("gateway: session not identified")

	// ErrSessionClosed is returned when a command is sent to a session
	// whose connection has been torn down.
	ErrSessionClosed = errors.New("gateway: session closed")

	// ErrServerClosed is returned by Start after Close has been called.
	ErrServerClosed = errors.New("gateway: server closed")
)
