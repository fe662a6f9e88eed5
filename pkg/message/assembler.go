package message

import (
	"time"

	"github.com/gramnet/gram/pkg/wire"
)

// Assembler collects inbound fragments keyed by fragmentation id and
// delivers completed messages exactly once.
//
// Completed reliable ids are retained for a while so that late
// retransmissions of an already-delivered message are recognised and
// suppressed instead of starting a ghost partial that would never finish.
type Assembler struct {
	maxMessageLength int

	partial   map[uint32]*ReceiveMessage
	completed map[uint32]time.Time
}

// NewAssembler creates an assembler enforcing the given maximum message
// length on inbound fragments.
func NewAssembler(maxMessageLength int) *Assembler {
	return &Assembler{
		maxMessageLength: maxMessageLength,
		partial:          make(map[uint32]*ReceiveMessage),
		completed:        make(map[uint32]time.Time),
	}
}

// Add incorporates one fragment.
//
// When the fragment completes its message, the reassembled payload is
// returned with done=true. Fragments of an already-completed reliable
// message return (nil, false, nil); the caller still owes the peer an
// acknowledgement for the covered range.
func (a *Assembler) Add(now time.Time, f *wire.Fragment) (data []byte, done bool, err error) {
	if f.Reliable {
		if _, dup := a.completed[f.ID]; dup {
			// Refresh the retention window: as long as the sender keeps
			// retransmitting, the id must stay blacklisted.
			a.completed[f.ID] = now
			return nil, false, nil
		}
	}

	if int(f.TotalLength) > a.maxMessageLength {
		return nil, false, ErrMessageTooLong
	}
	if int(f.Offset)+len(f.Data) > int(f.TotalLength) {
		return nil, false, ErrFragmentBounds
	}

	m, ok := a.partial[f.ID]
	if !ok {
		m = newReceiveMessage(now, f)
		a.partial[f.ID] = m
	}

	if err := m.Add(now, f); err != nil {
		if !ok {
			delete(a.partial, f.ID)
		}
		return nil, false, err
	}

	if !m.Complete() {
		return nil, false, nil
	}

	delete(a.partial, f.ID)
	if m.Reliable() {
		a.completed[f.ID] = now
	}
	return m.Data(), true, nil
}

// Sweep expires state: unreliable partials idle longer than partialTimeout
// are dropped silently, and completed reliable ids older than retain are
// forgotten. Reliable partials never age out; their sender keeps
// retransmitting until the message completes or the connection dies.
func (a *Assembler) Sweep(now time.Time, partialTimeout, retain time.Duration) {
	for id, m := range a.partial {
		if !m.Reliable() && now.Sub(m.LastFragment()) >= partialTimeout {
			delete(a.partial, id)
		}
	}
	for id, completedAt := range a.completed {
		if now.Sub(completedAt) >= retain {
			delete(a.completed, id)
		}
	}
}

// PartialCount returns the number of in-progress messages.
func (a *Assembler) PartialCount() int { return len(a.partial) }

// CompletedCount returns the number of retained completed ids.
func (a *Assembler) CompletedCount() int { return len(a.completed) }
