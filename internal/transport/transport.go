// Package transport implements the Device Session's link layer: TCP,
// HTTP long-poll and serial transports to a single Meshtastic node, unified
// behind the Manager interface.
package transport

import "context"

// ConnectionState mirrors the Device Session FSM's states.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Configuring
	Connected
	Rebooting
	UserDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Configuring:
		return "configuring"
	case Connected:
		return "connected"
	case Rebooting:
		return "rebooting"
	case UserDisconnected:
		return "user-disconnected"
	default:
		return "unknown"
	}
}

// Manager is the link-layer abstraction the Device Session drives. Every
// concrete transport (TCP, HTTP long-poll, serial) implements it the same
// way, so the session and ingest pipeline never know which link is in use.
type Manager interface {
	// Connect establishes the underlying link. It does not perform the
	// want_config handshake; that belongs to the Device Session.
	Connect(ctx context.Context) error
	// Disconnect tears down the link. Safe to call on an already-closed
	// transport.
	Disconnect() error
	// Send writes one already-framed-or-not payload (implementations frame
	// it themselves) to the device.
	Send(ctx context.Context, payload []byte) error
	// Frames delivers decoded FromRadio payloads as they arrive. The
	// channel is not closed on Disconnect; it stays usable across reconnects.
	Frames() <-chan []byte
	// State reports the transport's own view of connectivity; the Device
	// Session is the source of truth for the full FSM, this is merely the
	// link's up/down signal.
	State() ConnectionState
}
