package message

import (
	"bytes"
	"time"

	"github.com/gramnet/gram/pkg/wire"
)

// ReceiveMessage is a partially reassembled inbound message.
type ReceiveMessage struct {
	id       uint32
	reliable bool
	buf      []byte
	received *Intervals

	lastFragment time.Time
}

func newReceiveMessage(now time.Time, f *wire.Fragment) *ReceiveMessage {
	m := &ReceiveMessage{
		id:       f.ID,
		reliable: f.Reliable,
		buf:      make([]byte, f.TotalLength),
		received: NewIntervals(int(f.TotalLength)),
	}
	return m
}

// ID returns the fragmentation id.
func (m *ReceiveMessage) ID() uint32 { return m.id }

// Reliable reports the message's reliability class.
func (m *ReceiveMessage) Reliable() bool { return m.reliable }

// Complete reports whether all of [0, total) has been received.
func (m *ReceiveMessage) Complete() bool { return m.received.Complete() }

// Data returns the reassembled payload. Valid once Complete.
func (m *ReceiveMessage) Data() []byte { return m.buf }

// LastFragment returns when the most recent fragment arrived.
func (m *ReceiveMessage) LastFragment() time.Time { return m.lastFragment }

// Add incorporates one fragment.
//
// The fragment's declared total length and reliability flag must match the
// entry, and bytes overlapping ranges already received must agree with
// what was stored; any disagreement is ErrFragmentMismatch, which callers
// treat as a protocol violation. A range extending past the message is
// ErrFragmentBounds.
func (m *ReceiveMessage) Add(now time.Time, f *wire.Fragment) error {
	if int(f.TotalLength) != len(m.buf) || f.Reliable != m.reliable {
		return ErrFragmentMismatch
	}

	start := int(f.Offset)
	end := start + len(f.Data)
	if end > len(m.buf) {
		return ErrFragmentBounds
	}

	// Retransmitted fragments may overlap ranges already stored; the
	// overlapping bytes must be identical.
	for _, s := range m.received.intersect(start, end) {
		if !bytes.Equal(m.buf[s.start:s.end], f.Data[s.start-start:s.end-start]) {
			return ErrFragmentMismatch
		}
	}

	copy(m.buf[start:end], f.Data)
	m.received.Mark(start, end)
	m.lastFragment = now

	return nil
}
