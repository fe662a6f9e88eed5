package conn

import "time"

// Params carries the protocol knobs a connection needs. The socket layer
// builds one from its Config and shares it across all connections.
type Params struct {
	// ProtocolID guards against cross-version traffic. Handshakes with a
	// different id are ignored.
	ProtocolID uint64

	// MTU is the maximum datagram size produced.
	MTU int

	// HeartbeatInterval is how often to emit heartbeats on an established
	// connection. Must be well below LivenessTimeout.
	HeartbeatInterval time.Duration

	// HandshakeInterval is how often an opener resends handshakes.
	HandshakeInterval time.Duration

	// HandshakeTimeout bounds the opening phase.
	HandshakeTimeout time.Duration

	// LivenessTimeout is the inbound-silence threshold after which an
	// established connection is declared dead.
	LivenessTimeout time.Duration

	// InitialRTO applies before any RTT sample exists.
	InitialRTO time.Duration

	// MinRTO and MaxRTO clamp the retransmission timeout.
	MinRTO time.Duration
	MaxRTO time.Duration

	// CompletedRetainFactor is the multiple of the current RTO for which
	// completed reliable fragmentation ids are remembered to suppress
	// duplicate delivery.
	CompletedRetainFactor float64

	// PartialTimeout drops incomplete unreliable messages that stopped
	// making progress.
	PartialTimeout time.Duration

	// MaxMessageLength bounds both outbound sends and inbound reassembly.
	MaxMessageLength int
}
