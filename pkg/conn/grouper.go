package conn

import (
	"github.com/gramnet/gram/pkg/wire"
)

// packetGrouper fills datagrams with blobs up to the MTU, flushing a
// packet whenever the next blob needs more room. Small blobs coalesce
// into shared datagrams for free.
type packetGrouper struct {
	mtu  int
	send func([]byte) error
	pkt  wire.Packet

	packets int
	bytes   int
}

func newPacketGrouper(mtu int, send func([]byte) error) *packetGrouper {
	return &packetGrouper{mtu: mtu, send: send}
}

// spaceLeft returns the largest blob size that still fits the current packet.
func (g *packetGrouper) spaceLeft() int {
	return g.pkt.SpaceLeft(g.mtu)
}

// append adds a blob without checking against the MTU; callers pair it
// with spaceLeft or ensure.
func (g *packetGrouper) append(b wire.Blob) {
	g.pkt.Append(b)
}

// ensure guarantees room for a blob of the given size, flushing the
// current packet if needed. A blob that cannot fit an empty packet is
// wire.ErrMTUExceeded.
func (g *packetGrouper) ensure(size int) error {
	if g.spaceLeft() < size && len(g.pkt.Blobs) > 0 {
		if err := g.flush(); err != nil {
			return err
		}
	}
	if g.spaceLeft() < size {
		return wire.ErrMTUExceeded
	}
	return nil
}

// flush sends the current packet and starts a fresh one. Flushing an empty
// packet is wire.ErrMTUExceeded: the caller needed more room than an empty
// packet offers.
func (g *packetGrouper) flush() error {
	if len(g.pkt.Blobs) == 0 {
		return wire.ErrMTUExceeded
	}
	buf, err := g.pkt.Encode()
	if err != nil {
		return err
	}
	if err := g.send(buf); err != nil {
		return err
	}
	g.packets++
	g.bytes += len(buf)
	g.pkt = wire.Packet{}
	return nil
}

// finish sends whatever remains.
func (g *packetGrouper) finish() error {
	if len(g.pkt.Blobs) == 0 {
		return nil
	}
	return g.flush()
}
