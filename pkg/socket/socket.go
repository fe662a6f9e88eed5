// Package socket implements the gram endpoint: a multiplexer that owns
// one datagram transport and a table of per-peer connections.
//
// A Socket is symmetric — there is no client or server. Either side may
// Open a connection to a peer address, and inbound handshakes with a
// matching protocol id create connections automatically (subject to the
// optional Acceptor hook).
//
// The socket is single-threaded and poll-driven: the host calls Poll
// repeatedly with a monotonic clock sample, and every timer, send, and
// receive happens inside that call. Nothing blocks; inbound datagrams are
// drained from the transport until empty. All methods must be called from
// the same goroutine.
package socket

import (
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/gramnet/gram/pkg/conn"
	"github.com/gramnet/gram/pkg/transport"
	"github.com/gramnet/gram/pkg/wire"
)

// Socket multiplexes connections over one datagram transport.
type Socket struct {
	config Config
	params conn.Params
	io     transport.PacketIO
	log    logging.LeveledLogger

	nextID  uint32
	nextGen uint32

	byAddr map[string]*entry
	byID   map[uint32]*entry
	// order preserves creation order so event emission is deterministic.
	order []*entry
}

type entry struct {
	handle Handle
	conn   *conn.Connection
}

// New creates a socket over the given transport.
func New(io transport.PacketIO, config Config) (*Socket, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	s := &Socket{
		config: config,
		params: config.params(),
		io:     io,
		byAddr: make(map[string]*entry),
		byID:   make(map[uint32]*entry),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("socket")
	}
	return s, nil
}

// LocalAddr returns the transport's local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.io.LocalAddr()
}

// ConnectionCount returns the number of live connections.
func (s *Socket) ConnectionCount() int {
	return len(s.order)
}

// Open starts a connection to addr. The handle becomes useful once the
// EventConnected for it arrives; opening fails immediately only if a
// connection to addr already exists.
//
// now is the same clock sample the surrounding Poll cycle uses.
func (s *Socket) Open(now time.Time, addr net.Addr) (Handle, error) {
	if _, exists := s.byAddr[addr.String()]; exists {
		return Handle{}, ErrConnectionExists
	}

	c := conn.NewOutbound(addr, now, now, s.params, s.connLogger())
	e := s.add(addr, c)
	if s.log != nil {
		s.log.Infof("opening connection %v to %v", e.handle, addr)
	}
	return e.handle, nil
}

// Send queues a message for delivery on the next Poll. Fails with
// ErrUnknownHandle if the handle is stale.
func (s *Socket) Send(h Handle, data []byte, reliable bool) error {
	e, err := s.lookup(h)
	if err != nil {
		return err
	}
	_, err = e.conn.Send(data, reliable)
	return err
}

// Close requests teardown of a connection. A best-effort disconnect is
// flushed on the next Poll, which also emits the Disconnected event.
func (s *Socket) Close(h Handle) error {
	e, err := s.lookup(h)
	if err != nil {
		return err
	}
	e.conn.Close()
	return nil
}

// InTransit returns the number of messages not yet fully delivered to the
// peer behind h.
func (s *Socket) InTransit(h Handle) (int, error) {
	e, err := s.lookup(h)
	if err != nil {
		return 0, err
	}
	return e.conn.InTransit(), nil
}

// Metrics returns a snapshot of the connection's counters.
func (s *Socket) Metrics(h Handle) (conn.Metrics, error) {
	e, err := s.lookup(h)
	if err != nil {
		return conn.Metrics{}, err
	}
	return e.conn.Metrics(), nil
}

// Poll drives the socket: it drains inbound datagrams, runs every
// connection's timers (handshake resend, retransmission, heartbeats,
// liveness), flushes outbound traffic, and returns the events produced.
//
// now must come from a monotonic clock and never go backwards.
func (s *Socket) Poll(now time.Time) []Event {
	var events []Event

	// Drain the transport completely.
	for {
		d, ok := s.io.Recv()
		if !ok {
			break
		}
		s.receive(now, d)
	}

	// Connections that became established during the drain announce
	// themselves before any of their messages are delivered.
	for _, e := range s.order {
		if e.conn.JustConnected() {
			events = append(events, Event{
				Kind:   EventConnected,
				Handle: e.handle,
				Addr:   e.conn.Addr(),
			})
		}
	}

	// Timers and outbound traffic.
	for _, e := range s.order {
		addr := e.conn.Addr()
		err := e.conn.Update(now, func(b []byte) error {
			return s.io.Send(b, addr)
		})
		if err != nil && s.log != nil {
			s.log.Errorf("connection %v update: %v", e.handle, err)
		}
	}

	// Completed inbound messages.
	for _, e := range s.order {
		for _, data := range e.conn.DrainInbound() {
			events = append(events, Event{
				Kind:   EventMessage,
				Handle: e.handle,
				Addr:   e.conn.Addr(),
				Data:   data,
			})
		}
	}

	// Reap the dead.
	kept := s.order[:0]
	for _, e := range s.order {
		if e.conn.State() != conn.StateDead {
			kept = append(kept, e)
			continue
		}
		delete(s.byAddr, e.conn.Addr().String())
		delete(s.byID, e.handle.id)
		events = append(events, Event{
			Kind:   EventDisconnected,
			Handle: e.handle,
			Addr:   e.conn.Addr(),
			Reason: e.conn.CloseReason(),
		})
		if s.log != nil {
			s.log.Infof("connection %v to %v closed: %v", e.handle, e.conn.Addr(), e.conn.CloseReason())
		}
	}
	s.order = kept

	return events
}

// receive routes one inbound datagram.
func (s *Socket) receive(now time.Time, d transport.Datagram) {
	e := s.byAddr[d.From.String()]

	if id, ok := wire.DecodeHandshake(d.Payload); ok {
		if id != s.config.ProtocolID {
			if s.log != nil {
				s.log.Debugf("dropping handshake from %v with protocol id %#x", d.From, id)
			}
			return
		}
		if e != nil {
			e.conn.HandshakeReceived(now)
			return
		}
		if s.config.Acceptor != nil && !s.config.Acceptor(d.From) {
			if s.log != nil {
				s.log.Debugf("rejecting connection request from %v", d.From)
			}
			return
		}
		e = s.add(d.From, conn.NewInbound(d.From, now, now, s.params, s.connLogger()))
		if s.log != nil {
			s.log.Infof("accepted connection %v from %v", e.handle, d.From)
		}
		return
	}

	if e == nil {
		// Data from an address without a connection: drop. The peer
		// either never handshook or the connection already died.
		return
	}

	pkt, err := wire.Decode(d.Payload)
	if err != nil {
		if s.log != nil {
			s.log.Debugf("malformed datagram from %v: %v", d.From, err)
		}
		return
	}

	if err := e.conn.Receive(now, pkt); err != nil {
		// Semantic violations drop the datagram but never tear down the
		// connection; an attacker must not be able to kill a session
		// with garbage.
		if s.log != nil {
			s.log.Debugf("protocol violation from %v: %v", d.From, err)
		}
	}
}

func (s *Socket) add(addr net.Addr, c *conn.Connection) *entry {
	s.nextID++
	s.nextGen++
	e := &entry{
		handle: Handle{id: s.nextID, gen: s.nextGen},
		conn:   c,
	}
	s.byAddr[addr.String()] = e
	s.byID[e.handle.id] = e
	s.order = append(s.order, e)
	return e
}

func (s *Socket) lookup(h Handle) (*entry, error) {
	e, ok := s.byID[h.id]
	if !ok || e.handle.gen != h.gen {
		return nil, ErrUnknownHandle
	}
	return e, nil
}

func (s *Socket) connLogger() logging.LeveledLogger {
	if s.config.LoggerFactory == nil {
		return nil
	}
	return s.config.LoggerFactory.NewLogger("conn")
}
