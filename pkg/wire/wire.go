// Package wire implements the gram wire format: datagram-level packet
// framing and the blob codec.
//
// A datagram carries one of two packet shapes:
//
//   - Handshake: two zero bytes followed by an 8-byte protocol id
//     (10 bytes total).
//   - Data: a sequence of length-prefixed blobs, each a 16-bit big-endian
//     length followed by that many bytes, concatenated until the datagram
//     ends.
//
// Because every blob is at least one byte long (its tag), a data packet can
// never begin with a zero length prefix, which is what makes the handshake
// sentinel unambiguous. The codec rejects zero-length blobs on both paths.
//
// Within its length-prefixed region a blob is a single tag byte followed by
// a kind-specific body. All multi-byte fields are big-endian.
package wire

import (
	"encoding/binary"
)

// Blob tags. The tag is the first byte of every blob.
const (
	TagFragment          uint8 = 0
	TagHeartbeat         uint8 = 1
	TagHeartbeatResponse uint8 = 2
	TagAck               uint8 = 3
	TagDisconnect        uint8 = 4
)

// Framing sizes in bytes.
const (
	// LengthPrefixSize is the per-blob length prefix inside a data packet.
	LengthPrefixSize = 2

	// TagSize is the blob kind tag.
	TagSize = 1

	// HandshakeSize is the fixed size of a handshake packet.
	HandshakeSize = 10

	// FragmentHeaderSize is the fragment body before its payload:
	// id(4) + reliable(1) + total(4) + offset(4) + length(4).
	FragmentHeaderSize = 17

	// FragmentOverhead is the full framing cost of one fragment blob in a
	// data packet. A fragment carrying n payload bytes occupies
	// FragmentOverhead+n bytes of datagram.
	FragmentOverhead = LengthPrefixSize + TagSize + FragmentHeaderSize

	heartbeatBodySize = 8
	ackBodySize       = 12
)

// Blob is a single protocol message inside a data packet.
type Blob interface {
	// Tag returns the blob's kind tag.
	Tag() uint8

	// Size returns the encoded size of the blob in bytes, including the
	// tag but not the length prefix.
	Size() int

	// encodeBody writes the body (everything after the tag) into buf and
	// returns the number of bytes written. buf must be at least Size()-1
	// bytes.
	encodeBody(buf []byte) int
}

// Fragment carries one byte range of a logical message.
type Fragment struct {
	// ID is the fragmentation id grouping fragments of one message.
	// Unique per sender per connection, monotonically assigned.
	ID uint32

	// Reliable marks the parent message as requiring acknowledgement.
	Reliable bool

	// TotalLength is the total length of the parent message in bytes.
	TotalLength uint32

	// Offset is this fragment's byte offset within the parent message.
	Offset uint32

	// Data is the fragment payload. Its length is encoded on the wire.
	Data []byte
}

// Heartbeat is a keepalive probe carrying the sender's local timestamp.
type Heartbeat struct {
	Timestamp uint64
}

// HeartbeatResponse echoes a received heartbeat's timestamp verbatim.
type HeartbeatResponse struct {
	Timestamp uint64
}

// Ack acknowledges receipt of an exact fragment byte range.
type Ack struct {
	ID     uint32
	Offset uint32
	Length uint32
}

// Disconnect signals intentional teardown. It has no body.
type Disconnect struct{}

func (f *Fragment) Tag() uint8          { return TagFragment }
func (h *Heartbeat) Tag() uint8         { return TagHeartbeat }
func (h *HeartbeatResponse) Tag() uint8 { return TagHeartbeatResponse }
func (a *Ack) Tag() uint8               { return TagAck }
func (d *Disconnect) Tag() uint8        { return TagDisconnect }

func (f *Fragment) Size() int          { return TagSize + FragmentHeaderSize + len(f.Data) }
func (h *Heartbeat) Size() int         { return TagSize + heartbeatBodySize }
func (h *HeartbeatResponse) Size() int { return TagSize + heartbeatBodySize }
func (a *Ack) Size() int               { return TagSize + ackBodySize }
func (d *Disconnect) Size() int        { return TagSize }

// Ack builds the acknowledgement covering this fragment's byte range.
// Returns nil for unreliable fragments, which are never acknowledged.
func (f *Fragment) Ack() *Ack {
	if !f.Reliable {
		return nil
	}
	return &Ack{
		ID:     f.ID,
		Offset: f.Offset,
		Length: uint32(len(f.Data)),
	}
}

func (f *Fragment) encodeBody(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:], f.ID)
	if f.Reliable {
		buf[4] = 1
	} else {
		buf[4] = 0
	}
	binary.BigEndian.PutUint32(buf[5:], f.TotalLength)
	binary.BigEndian.PutUint32(buf[9:], f.Offset)
	binary.BigEndian.PutUint32(buf[13:], uint32(len(f.Data)))
	copy(buf[FragmentHeaderSize:], f.Data)
	return FragmentHeaderSize + len(f.Data)
}

func (h *Heartbeat) encodeBody(buf []byte) int {
	binary.BigEndian.PutUint64(buf[0:], h.Timestamp)
	return heartbeatBodySize
}

func (h *HeartbeatResponse) encodeBody(buf []byte) int {
	binary.BigEndian.PutUint64(buf[0:], h.Timestamp)
	return heartbeatBodySize
}

func (a *Ack) encodeBody(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:], a.ID)
	binary.BigEndian.PutUint32(buf[4:], a.Offset)
	binary.BigEndian.PutUint32(buf[8:], a.Length)
	return ackBodySize
}

func (d *Disconnect) encodeBody(buf []byte) int { return 0 }

func decodeFragment(body []byte) (*Fragment, error) {
	if len(body) < FragmentHeaderSize {
		return nil, ErrMalformed
	}
	rel := body[4]
	if rel > 1 {
		return nil, ErrMalformed
	}
	length := binary.BigEndian.Uint32(body[13:])
	if int(length) != len(body)-FragmentHeaderSize {
		return nil, ErrMalformed
	}
	data := make([]byte, length)
	copy(data, body[FragmentHeaderSize:])
	return &Fragment{
		ID:          binary.BigEndian.Uint32(body[0:]),
		Reliable:    rel == 1,
		TotalLength: binary.BigEndian.Uint32(body[5:]),
		Offset:      binary.BigEndian.Uint32(body[9:]),
		Data:        data,
	}, nil
}

func decodeTimestamp(body []byte) (uint64, error) {
	if len(body) != heartbeatBodySize {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint64(body), nil
}

func decodeAck(body []byte) (*Ack, error) {
	if len(body) != ackBodySize {
		return nil, ErrMalformed
	}
	return &Ack{
		ID:     binary.BigEndian.Uint32(body[0:]),
		Offset: binary.BigEndian.Uint32(body[4:]),
		Length: binary.BigEndian.Uint32(body[8:]),
	}, nil
}

// decodeBlob decodes one blob from its length-prefixed region.
func decodeBlob(b []byte) (Blob, error) {
	if len(b) < TagSize {
		return nil, ErrMalformed
	}
	body := b[TagSize:]

	switch b[0] {
	case TagFragment:
		return decodeFragment(body)
	case TagHeartbeat:
		ts, err := decodeTimestamp(body)
		if err != nil {
			return nil, err
		}
		return &Heartbeat{Timestamp: ts}, nil
	case TagHeartbeatResponse:
		ts, err := decodeTimestamp(body)
		if err != nil {
			return nil, err
		}
		return &HeartbeatResponse{Timestamp: ts}, nil
	case TagAck:
		return decodeAck(body)
	case TagDisconnect:
		if len(body) != 0 {
			return nil, ErrMalformed
		}
		return &Disconnect{}, nil
	default:
		return nil, ErrMalformed
	}
}
