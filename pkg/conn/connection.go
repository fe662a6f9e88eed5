package conn

import (
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/gramnet/gram/pkg/message"
	"github.com/gramnet/gram/pkg/wire"
)

// Connection is the per-peer protocol state machine.
//
// It owns the outbound fragmenter state, the inbound assembler, the RTT
// estimator, and the pending ack/echo queues. The socket drives it with
// Update and Receive; nothing here blocks or reads the clock.
type Connection struct {
	addr   net.Addr
	params Params
	log    logging.LeveledLogger

	state  State
	reason Reason

	// Opening-side handshake bookkeeping.
	openedAt       time.Time
	lastHandshake  time.Time
	handshakeSent  bool
	replyHandshake bool

	lastInbound   time.Time
	lastHeartbeat time.Time

	// epoch anchors the u64 microsecond timestamps carried in heartbeats.
	epoch time.Time

	nextFragID uint32
	sendQueue  []*message.SendMessage

	asm *message.Assembler
	rtt *Estimator

	pendingAcks   []*wire.Ack
	pendingEchoes []uint64

	inbound [][]byte

	justConnected bool

	sentPackets     uint64
	sentBytes       uint64
	reliableCount   uint64
	unreliableCount uint64
	violationsCount uint64
}

// New creates a connection to addr at the given time, leaving its state at
// the zero value (StateOpening).
//
// NewOutbound and NewInbound set the side: the opener resends handshakes
// until the peer responds, while the accepting side starts Established and
// owes the opener one handshake reply.
func New(addr net.Addr, now time.Time, epoch time.Time, params Params, log logging.LeveledLogger) *Connection {
	c := &Connection{
		addr:        addr,
		params:      params,
		log:         log,
		epoch:       epoch,
		openedAt:    now,
		lastInbound: now,
		asm:         message.NewAssembler(params.MaxMessageLength),
		rtt:         NewEstimator(params.InitialRTO, params.MinRTO, params.MaxRTO),
	}
	return c
}

// NewOutbound creates the opening side of a connection.
func NewOutbound(addr net.Addr, now, epoch time.Time, params Params, log logging.LeveledLogger) *Connection {
	c := New(addr, now, epoch, params, log)
	c.state = StateOpening
	return c
}

// NewInbound creates the accepting side of a connection, established
// immediately on a valid handshake.
func NewInbound(addr net.Addr, now, epoch time.Time, params Params, log logging.LeveledLogger) *Connection {
	c := New(addr, now, epoch, params, log)
	c.state = StateEstablished
	c.justConnected = true
	c.replyHandshake = true
	return c
}

// Addr returns the peer address.
func (c *Connection) Addr() net.Addr { return c.addr }

// State returns the lifecycle state.
func (c *Connection) State() State { return c.state }

// CloseReason returns why the connection died, once State is StateDead.
func (c *Connection) CloseReason() Reason { return c.reason }

// JustConnected reports, exactly once, that the connection became
// established since the last call.
func (c *Connection) JustConnected() bool {
	if c.justConnected {
		c.justConnected = false
		return true
	}
	return false
}

// Send queues a message for delivery and returns its fragmentation id.
func (c *Connection) Send(data []byte, reliable bool) (uint32, error) {
	if c.state == StateDead || c.state == StateDisconnecting {
		return 0, ErrClosed
	}
	if len(data) > c.params.MaxMessageLength {
		return 0, message.ErrMessageTooLong
	}

	id := c.nextFragID
	c.nextFragID++

	c.sendQueue = append(c.sendQueue, message.NewSendMessage(id, reliable, data))
	if reliable {
		c.reliableCount++
	} else {
		c.unreliableCount++
	}
	return id, nil
}

// Close requests teardown. The next Update emits a best-effort disconnect
// and the connection dies with ReasonLocalClosed.
func (c *Connection) Close() {
	if c.state == StateDead || c.state == StateDisconnecting {
		return
	}
	c.state = StateDisconnecting
}

// InTransit returns the number of queued messages not yet fully delivered.
func (c *Connection) InTransit() int { return len(c.sendQueue) }

// RTT returns the smoothed round-trip time, if a sample exists.
func (c *Connection) RTT() (time.Duration, bool) { return c.rtt.SmoothedRTT() }

func (c *Connection) die(reason Reason) {
	if c.state == StateDead {
		return
	}
	c.state = StateDead
	c.reason = reason
	if c.log != nil {
		c.log.Debugf("connection to %v dead: %v", c.addr, reason)
	}
}

func (c *Connection) establish(now time.Time) {
	if c.state != StateOpening {
		return
	}
	c.state = StateEstablished
	c.justConnected = true
	if c.log != nil {
		c.log.Infof("connection to %v established", c.addr)
	}
}

// timestamp converts a clock sample into heartbeat wire time.
func (c *Connection) timestamp(now time.Time) uint64 {
	d := now.Sub(c.epoch)
	if d < 0 {
		return 0
	}
	return uint64(d.Microseconds())
}

// Update drives timers and flushes outbound traffic. send transmits one
// encoded datagram to the peer.
func (c *Connection) Update(now time.Time, send func([]byte) error) error {
	switch c.state {
	case StateDead:
		return nil

	case StateOpening:
		if now.Sub(c.openedAt) >= c.params.HandshakeTimeout {
			c.die(ReasonHandshakeTimeout)
			return nil
		}
		if !c.handshakeSent || now.Sub(c.lastHandshake) >= c.params.HandshakeInterval {
			c.handshakeSent = true
			c.lastHandshake = now
			buf := wire.EncodeHandshake(c.params.ProtocolID)
			if err := send(buf); err != nil {
				return err
			}
			c.sentPackets++
			c.sentBytes += uint64(len(buf))
		}
		return nil

	case StateEstablished:
		if now.Sub(c.lastInbound) >= c.params.LivenessTimeout {
			c.die(ReasonTimeout)
			return nil
		}
	}

	if c.replyHandshake {
		c.replyHandshake = false
		buf := wire.EncodeHandshake(c.params.ProtocolID)
		if err := send(buf); err != nil {
			return err
		}
		c.sentPackets++
		c.sentBytes += uint64(len(buf))
	}

	g := newPacketGrouper(c.params.MTU, send)

	if err := c.emitFragments(now, g); err != nil {
		return err
	}
	if err := c.emitHeartbeats(now, g); err != nil {
		return err
	}
	if err := c.emitAcks(g); err != nil {
		return err
	}

	if c.state == StateDisconnecting {
		d := &wire.Disconnect{}
		if err := g.ensure(d.Size()); err != nil {
			return err
		}
		g.append(d)
	}

	if err := g.finish(); err != nil {
		return err
	}
	c.sentPackets += uint64(g.packets)
	c.sentBytes += uint64(g.bytes)

	if c.state == StateDisconnecting {
		c.die(ReasonLocalClosed)
	}

	c.asm.Sweep(now, c.params.PartialTimeout, c.completedRetain())

	return nil
}

// completedRetain is the duplicate-suppression window for completed
// reliable ids. It is a multiple of the RTO rather than the raw RTT:
// retransmissions are paced by the (floored) RTO, so the window must
// dominate that timer or a late retransmission would be re-delivered.
func (c *Connection) completedRetain() time.Duration {
	return time.Duration(float64(c.rtt.RTO()) * c.params.CompletedRetainFactor)
}

func (c *Connection) emitFragments(now time.Time, g *packetGrouper) error {
	rto := c.rtt.RTO()

	for _, m := range c.sendQueue {
		if !m.Due(now, rto) {
			continue
		}
		if _, ever := m.LastSent(); ever && c.log != nil {
			c.log.Debugf("resending message %d to %v (retry %d)", m.ID(), c.addr, m.Retries()+1)
		}

		scratch := m.SnapshotDelivered()
		for {
			f, more := m.NextFragment(scratch, g.spaceLeft())
			if f != nil {
				g.append(f)
				continue
			}
			if !more {
				break
			}
			if err := g.flush(); err != nil {
				return err
			}
		}

		m.MarkSent(now)
		if !m.Reliable() {
			m.CommitDelivered(scratch)
		}
	}

	c.dropDelivered()
	return nil
}

func (c *Connection) emitHeartbeats(now time.Time, g *packetGrouper) error {
	if now.Sub(c.lastHeartbeat) >= c.params.HeartbeatInterval {
		c.lastHeartbeat = now
		hb := &wire.Heartbeat{Timestamp: c.timestamp(now)}
		if err := g.ensure(hb.Size()); err != nil {
			return err
		}
		g.append(hb)
	}

	for _, ts := range c.pendingEchoes {
		echo := &wire.HeartbeatResponse{Timestamp: ts}
		if err := g.ensure(echo.Size()); err != nil {
			return err
		}
		g.append(echo)
	}
	c.pendingEchoes = c.pendingEchoes[:0]

	return nil
}

func (c *Connection) emitAcks(g *packetGrouper) error {
	for _, ack := range c.pendingAcks {
		if err := g.ensure(ack.Size()); err != nil {
			return err
		}
		g.append(ack)
	}
	c.pendingAcks = c.pendingAcks[:0]
	return nil
}

func (c *Connection) dropDelivered() {
	kept := c.sendQueue[:0]
	for _, m := range c.sendQueue {
		if !m.Delivered() {
			kept = append(kept, m)
		}
	}
	c.sendQueue = kept
}

// HandshakeReceived processes a valid handshake from the peer: it
// establishes an opening connection, and makes an established acceptor
// re-reply so an opener whose reply was lost can still come up.
func (c *Connection) HandshakeReceived(now time.Time) {
	if c.state == StateDead {
		return
	}
	c.lastInbound = now

	switch c.state {
	case StateOpening:
		c.establish(now)
	case StateEstablished:
		c.replyHandshake = true
	}
}

// Receive processes one decoded data packet.
//
// A protocol violation (fragment state mismatch, oversized message,
// out-of-range ack) aborts processing of the remaining blobs and is
// reported to the caller; the connection itself stays up.
func (c *Connection) Receive(now time.Time, pkt *wire.Packet) error {
	if c.state == StateDead {
		return nil
	}
	c.lastInbound = now

	if c.state == StateOpening {
		// Any valid data packet proves the peer accepted us.
		c.establish(now)
	}

	for _, blob := range pkt.Blobs {
		switch b := blob.(type) {
		case *wire.Fragment:
			if err := c.receiveFragment(now, b); err != nil {
				c.violationsCount++
				return err
			}

		case *wire.Heartbeat:
			c.pendingEchoes = append(c.pendingEchoes, b.Timestamp)

		case *wire.HeartbeatResponse:
			sent := c.epoch.Add(time.Duration(b.Timestamp) * time.Microsecond)
			c.rtt.AddSample(now.Sub(sent))

		case *wire.Ack:
			if err := c.receiveAck(b); err != nil {
				c.violationsCount++
				return err
			}

		case *wire.Disconnect:
			c.die(ReasonRemoteClosed)
			return nil
		}
	}

	return nil
}

func (c *Connection) receiveFragment(now time.Time, f *wire.Fragment) error {
	data, done, err := c.asm.Add(now, f)
	if err != nil {
		return err
	}

	// Reliable coverage is acknowledged even for duplicates; the peer may
	// be retransmitting because our previous ack was lost.
	if ack := f.Ack(); ack != nil {
		c.pendingAcks = append(c.pendingAcks, ack)
	}

	if done {
		c.inbound = append(c.inbound, data)
	}
	return nil
}

func (c *Connection) receiveAck(a *wire.Ack) error {
	for _, m := range c.sendQueue {
		if m.ID() != a.ID {
			continue
		}
		if err := m.Acknowledge(int(a.Offset), int(a.Length)); err != nil {
			return err
		}
		break
	}
	// Acks for unknown ids are late arrivals for messages already
	// delivered and dropped; ignore them.

	c.dropDelivered()
	return nil
}

// DrainInbound returns completed inbound messages in completion order,
// clearing the queue.
func (c *Connection) DrainInbound() [][]byte {
	out := c.inbound
	c.inbound = nil
	return out
}

// Metrics returns a snapshot of the connection's counters.
func (c *Connection) Metrics() Metrics {
	m := Metrics{
		SentPackets:        c.sentPackets,
		SentBytes:          c.sentBytes,
		ReliableMessages:   c.reliableCount,
		UnreliableMessages: c.unreliableCount,
		ProtocolViolations: c.violationsCount,
		InTransit:          len(c.sendQueue),
	}
	m.RTT, m.HasRTT = c.rtt.SmoothedRTT()
	return m
}

// Metrics is a snapshot of per-connection counters.
type Metrics struct {
	// SentPackets counts datagrams sent, handshakes included.
	SentPackets uint64

	// SentBytes counts datagram bytes sent.
	SentBytes uint64

	// ReliableMessages and UnreliableMessages count messages queued with
	// Send, by class.
	ReliableMessages   uint64
	UnreliableMessages uint64

	// ProtocolViolations counts inbound packets dropped for semantic
	// inconsistency.
	ProtocolViolations uint64

	// InTransit is the number of messages not yet fully delivered.
	InTransit int

	// RTT is the smoothed round-trip estimate; HasRTT reports whether a
	// sample exists.
	RTT    time.Duration
	HasRTT bool
}
