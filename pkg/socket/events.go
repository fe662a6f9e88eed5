package socket

import (
	"fmt"
	"net"

	"github.com/gramnet/gram/pkg/conn"
)

// Handle is an opaque reference to a connection. Handles stay valid until
// the connection's Disconnected event; afterwards lookups fail with
// ErrUnknownHandle.
type Handle struct {
	id  uint32
	gen uint32
}

// String returns a debug representation.
func (h Handle) String() string {
	return fmt.Sprintf("conn#%d.%d", h.id, h.gen)
}

// EventKind discriminates socket events.
type EventKind int

const (
	// EventConnected means a connection became established, either an
	// accepted inbound peer or a completed outbound open.
	EventConnected EventKind = iota

	// EventMessage means a complete message arrived.
	EventMessage

	// EventDisconnected means a connection died; Reason says why. The
	// handle is invalid from this point on.
	EventDisconnected
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventMessage:
		return "Message"
	case EventDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Event is one entry of the ordered stream returned by Poll.
type Event struct {
	Kind   EventKind
	Handle Handle

	// Addr is the peer address the event concerns.
	Addr net.Addr

	// Data is the message payload for EventMessage.
	Data []byte

	// Reason is set for EventDisconnected.
	Reason conn.Reason
}
