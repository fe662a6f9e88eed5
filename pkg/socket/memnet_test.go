package socket

import (
	"net"
	"testing"
	"time"

	"github.com/gramnet/gram/pkg/transport"
	"github.com/gramnet/gram/pkg/wire"
)

// The tests in this package drive socket pairs over a deterministic
// in-memory network with scripted packet loss and a virtual clock, so
// retransmission and timeout behavior is exact rather than timing-y.

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// memNet is a synchronous in-memory datagram network. Send enqueues
// directly into the destination endpoint's queue; drop, when set, can
// discard any datagram in flight.
type memNet struct {
	endpoints map[string]*memIO
	drop      func(from, to net.Addr, payload []byte) bool
}

func newMemNet() *memNet {
	return &memNet{endpoints: make(map[string]*memIO)}
}

func (n *memNet) endpoint(name string) *memIO {
	m := &memIO{net: n, addr: memAddr(name)}
	n.endpoints[name] = m
	return m
}

type memIO struct {
	net   *memNet
	addr  memAddr
	queue []transport.Datagram
}

func (m *memIO) Send(p []byte, addr net.Addr) error {
	dst, ok := m.net.endpoints[addr.String()]
	if !ok {
		return nil
	}
	if m.net.drop != nil && m.net.drop(m.addr, addr, p) {
		return nil
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	dst.queue = append(dst.queue, transport.Datagram{Payload: cp, From: m.addr})
	return nil
}

func (m *memIO) Recv() (transport.Datagram, bool) {
	if len(m.queue) == 0 {
		return transport.Datagram{}, false
	}
	d := m.queue[0]
	m.queue = m.queue[1:]
	return d, true
}

func (m *memIO) LocalAddr() net.Addr { return m.addr }
func (m *memIO) Close() error        { return nil }

// hasFragment reports whether a datagram is a data packet carrying at
// least one message fragment. Used by drop scripts that target fragments
// while letting handshakes and bare heartbeats through.
func hasFragment(payload []byte) bool {
	if _, ok := wire.DecodeHandshake(payload); ok {
		return false
	}
	pkt, err := wire.Decode(payload)
	if err != nil {
		return false
	}
	for _, b := range pkt.Blobs {
		if _, ok := b.(*wire.Fragment); ok {
			return true
		}
	}
	return false
}

// hasAck reports whether a datagram carries at least one acknowledgement.
func hasAck(payload []byte) bool {
	if _, ok := wire.DecodeHandshake(payload); ok {
		return false
	}
	pkt, err := wire.Decode(payload)
	if err != nil {
		return false
	}
	for _, b := range pkt.Blobs {
		if _, ok := b.(*wire.Ack); ok {
			return true
		}
	}
	return false
}

// pair is two sockets on a memNet with per-side event recorders and a
// virtual clock.
type pair struct {
	t   *testing.T
	net *memNet

	a, b         *Socket
	aAddr, bAddr net.Addr
	aEvents      []Event
	bEvents      []Event

	now time.Time
}

func newPair(t *testing.T, configA, configB Config) *pair {
	t.Helper()

	n := newMemNet()
	aIO := n.endpoint("a")
	bIO := n.endpoint("b")

	a, err := New(aIO, configA)
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	b, err := New(bIO, configB)
	if err != nil {
		t.Fatalf("New b: %v", err)
	}

	return &pair{
		t:     t,
		net:   n,
		a:     a,
		b:     b,
		aAddr: aIO.addr,
		bAddr: bIO.addr,
		now:   time.Now(),
	}
}

// step polls both sockets at the current virtual time, then advances it.
func (p *pair) step(dt time.Duration) {
	p.aEvents = append(p.aEvents, p.a.Poll(p.now)...)
	p.bEvents = append(p.bEvents, p.b.Poll(p.now)...)
	p.now = p.now.Add(dt)
}

// run steps the virtual clock forward by total in dt increments.
func (p *pair) run(total, dt time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += dt {
		p.step(dt)
	}
}

// runUntil steps until cond holds or the virtual budget is exhausted.
func (p *pair) runUntil(total, dt time.Duration, cond func() bool) bool {
	for elapsed := time.Duration(0); elapsed < total; elapsed += dt {
		if cond() {
			return true
		}
		p.step(dt)
	}
	return cond()
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// connect opens a→b and steps until both sides report Connected,
// returning A's handle for the connection.
func (p *pair) connect(dt time.Duration) Handle {
	p.t.Helper()

	h, err := p.a.Open(p.now, p.bAddr)
	if err != nil {
		p.t.Fatalf("Open: %v", err)
	}

	ok := p.runUntil(5*time.Second, dt, func() bool {
		return len(eventsOfKind(p.aEvents, EventConnected)) > 0 &&
			len(eventsOfKind(p.bEvents, EventConnected)) > 0
	})
	if !ok {
		p.t.Fatal("connection never established")
	}
	return h
}

// bHandle returns B's handle for its (single) connection.
func (p *pair) bHandle() Handle {
	p.t.Helper()
	connected := eventsOfKind(p.bEvents, EventConnected)
	if len(connected) == 0 {
		p.t.Fatal("b has no connection")
	}
	return connected[0].Handle
}
