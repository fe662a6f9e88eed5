package socket

import (
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/gramnet/gram/pkg/conn"
	"github.com/gramnet/gram/pkg/wire"
)

// Config configures a Socket.
type Config struct {
	// ProtocolID guards against cross-version traffic: handshakes
	// carrying a different id are dropped silently.
	ProtocolID uint64

	// MTU is the maximum datagram size produced. Must leave room for at
	// least one payload byte per fragment.
	MTU int

	// HeartbeatInterval is how often established connections emit
	// heartbeats. Keep it well below LivenessTimeout.
	HeartbeatInterval time.Duration

	// LivenessTimeout declares a connection dead after this much inbound
	// silence.
	LivenessTimeout time.Duration

	// HandshakeInterval is how often an opener resends handshakes;
	// HandshakeTimeout bounds the whole opening phase.
	HandshakeInterval time.Duration
	HandshakeTimeout  time.Duration

	// InitialRTO applies before the first RTT sample; MinRTO and MaxRTO
	// clamp the retransmission timeout afterwards.
	InitialRTO time.Duration
	MinRTO     time.Duration
	MaxRTO     time.Duration

	// CompletedRetainFactor is the multiple of the current RTO for which
	// completed reliable fragmentation ids are remembered to suppress
	// duplicates after retransmission.
	CompletedRetainFactor float64

	// PartialTimeout drops incomplete unreliable messages that stopped
	// making progress.
	PartialTimeout time.Duration

	// MaxMessageLength bounds outbound sends and inbound reassembly.
	MaxMessageLength int

	// Acceptor, when set, decides whether to accept a connection from an
	// unknown peer that sent a valid handshake. Nil accepts everyone.
	Acceptor func(addr net.Addr) bool

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns a config with the standard protocol defaults.
func DefaultConfig() Config {
	return Config{
		MTU:                   1200,
		HeartbeatInterval:     100 * time.Millisecond,
		LivenessTimeout:       5 * time.Second,
		HandshakeInterval:     100 * time.Millisecond,
		HandshakeTimeout:      5 * time.Second,
		InitialRTO:            200 * time.Millisecond,
		MinRTO:                50 * time.Millisecond,
		MaxRTO:                time.Second,
		CompletedRetainFactor: 4,
		PartialTimeout:        3 * time.Second,
		MaxMessageLength:      1 << 20,
	}
}

// applyDefaults fills zero fields from DefaultConfig.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MTU == 0 {
		c.MTU = d.MTU
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.LivenessTimeout == 0 {
		c.LivenessTimeout = d.LivenessTimeout
	}
	if c.HandshakeInterval == 0 {
		c.HandshakeInterval = d.HandshakeInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.InitialRTO == 0 {
		c.InitialRTO = d.InitialRTO
	}
	if c.MinRTO == 0 {
		c.MinRTO = d.MinRTO
	}
	if c.MaxRTO == 0 {
		c.MaxRTO = d.MaxRTO
	}
	if c.CompletedRetainFactor == 0 {
		c.CompletedRetainFactor = d.CompletedRetainFactor
	}
	if c.PartialTimeout == 0 {
		c.PartialTimeout = d.PartialTimeout
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = d.MaxMessageLength
	}
}

// validate rejects configurations the engine cannot operate with.
func (c *Config) validate() error {
	if c.MTU < wire.FragmentOverhead+1 {
		return ErrInvalidConfig
	}
	if c.MTU > int(^uint16(0)) {
		return ErrInvalidConfig
	}
	if c.HeartbeatInterval >= c.LivenessTimeout {
		return ErrInvalidConfig
	}
	if c.MinRTO > c.MaxRTO {
		return ErrInvalidConfig
	}
	return nil
}

// params projects the config onto the connection layer.
func (c *Config) params() conn.Params {
	return conn.Params{
		ProtocolID:            c.ProtocolID,
		MTU:                   c.MTU,
		HeartbeatInterval:     c.HeartbeatInterval,
		HandshakeInterval:     c.HandshakeInterval,
		HandshakeTimeout:      c.HandshakeTimeout,
		LivenessTimeout:       c.LivenessTimeout,
		InitialRTO:            c.InitialRTO,
		MinRTO:                c.MinRTO,
		MaxRTO:                c.MaxRTO,
		CompletedRetainFactor: c.CompletedRetainFactor,
		PartialTimeout:        c.PartialTimeout,
		MaxMessageLength:      c.MaxMessageLength,
	}
}
