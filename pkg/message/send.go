package message

import (
	"time"

	"github.com/gramnet/gram/pkg/wire"
)

// SendMessage is an outbound message a connection is trying to deliver.
//
// Delivery progress is tracked as an interval set. For reliable messages
// the set advances only when acknowledgements arrive; for unreliable
// messages it advances as fragments are handed to the transport, so the
// message is considered delivered after one send wave.
type SendMessage struct {
	id       uint32
	reliable bool
	data     []byte

	delivered *Intervals

	everSent bool
	lastSent time.Time
	retries  int
}

// NewSendMessage creates an outbound message with the given fragmentation id.
func NewSendMessage(id uint32, reliable bool, data []byte) *SendMessage {
	return &SendMessage{
		id:        id,
		reliable:  reliable,
		data:      data,
		delivered: NewIntervals(len(data)),
	}
}

// ID returns the fragmentation id.
func (m *SendMessage) ID() uint32 { return m.id }

// Reliable reports whether the message requires acknowledgement.
func (m *SendMessage) Reliable() bool { return m.reliable }

// Delivered reports whether every byte has been delivered (or, for
// unreliable messages, sent).
func (m *SendMessage) Delivered() bool { return m.delivered.Complete() }

// Retries returns how many send waves past the first have occurred.
func (m *SendMessage) Retries() int { return m.retries }

// LastSent returns the time of the most recent send wave.
func (m *SendMessage) LastSent() (time.Time, bool) { return m.lastSent, m.everSent }

// Due reports whether a send wave should happen now. Unreliable messages
// are due exactly once; reliable messages are due initially and whenever
// the retransmission timeout has elapsed since the last wave.
func (m *SendMessage) Due(now time.Time, rto time.Duration) bool {
	if !m.everSent {
		return true
	}
	if !m.reliable {
		return false
	}
	return now.Sub(m.lastSent) >= rto
}

// MarkSent records a completed send wave.
func (m *SendMessage) MarkSent(now time.Time) {
	if m.everSent {
		m.retries++
	}
	m.everSent = true
	m.lastSent = now
}

// SnapshotDelivered returns a copy of the delivered set for use during one
// send wave. Reliable senders discard the copy afterwards (acknowledgements
// advance the real set); unreliable senders commit it with CommitDelivered.
func (m *SendMessage) SnapshotDelivered() *Intervals {
	return m.delivered.Clone()
}

// CommitDelivered replaces the delivered set. The intervals must have come
// from this message's SnapshotDelivered.
func (m *SendMessage) CommitDelivered(iv *Intervals) {
	m.delivered = iv
}

// Acknowledge records that [offset, offset+length) reached the peer.
// Returns ErrAckOutOfRange when the range lies outside the message.
func (m *SendMessage) Acknowledge(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return ErrAckOutOfRange
	}
	m.delivered.Mark(offset, offset+length)
	return nil
}

// NextFragment carves the next undelivered range that fits within space
// (the permitted blob size, tag included) out of the scratch interval set,
// marking the carved range in scratch.
//
// Returns (nil, false) when scratch has no gaps left, and (nil, true) when
// the next fragment needs more room than space offers — the caller should
// start a fresh packet and retry.
func (m *SendMessage) NextFragment(scratch *Intervals, space int) (*wire.Fragment, bool) {
	start, end, ok := scratch.FirstGap()
	if !ok {
		return nil, false
	}

	capacity := space - wire.TagSize - wire.FragmentHeaderSize
	if capacity < 0 || (capacity == 0 && end > start) {
		return nil, true
	}

	if end > start+capacity {
		end = start + capacity
	}
	scratch.Mark(start, end)

	return &wire.Fragment{
		ID:          m.id,
		Reliable:    m.reliable,
		TotalLength: uint32(len(m.data)),
		Offset:      uint32(start),
		Data:        m.data[start:end],
	}, false
}
