package wire

import (
	"encoding/binary"
)

// Packet is a collection of blobs encoded into a single datagram.
type Packet struct {
	Blobs []Blob
}

// Append adds a blob to the packet. Size limits are the caller's
// responsibility; see SpaceLeft.
func (p *Packet) Append(b Blob) {
	p.Blobs = append(p.Blobs, b)
}

// Size returns the encoded size of the packet in bytes.
func (p *Packet) Size() int {
	size := 0
	for _, b := range p.Blobs {
		size += LengthPrefixSize + b.Size()
	}
	return size
}

// SpaceLeft returns how large the next blob may be (its Size, excluding the
// length prefix) for the packet to stay within mtu once that blob and its
// prefix are appended.
func (p *Packet) SpaceLeft(mtu int) int {
	left := mtu - p.Size() - LengthPrefixSize
	if left < 0 {
		return 0
	}
	return left
}

// Encode serializes the packet into a fresh buffer.
func (p *Packet) Encode() ([]byte, error) {
	buf := make([]byte, p.Size())
	off := 0
	for _, b := range p.Blobs {
		size := b.Size()
		if size == 0 || size > 0xFFFF {
			// Cannot happen for the defined blob kinds; guards the
			// handshake sentinel all the same.
			return nil, ErrBlobSize
		}
		binary.BigEndian.PutUint16(buf[off:], uint16(size))
		off += LengthPrefixSize
		buf[off] = b.Tag()
		n := b.encodeBody(buf[off+TagSize:])
		off += TagSize + n
	}
	return buf, nil
}

// EncodeHandshake produces a handshake packet: two zero bytes followed by
// the 8-byte protocol id.
func EncodeHandshake(protocolID uint64) []byte {
	buf := make([]byte, HandshakeSize)
	binary.BigEndian.PutUint64(buf[2:], protocolID)
	return buf
}

// DecodeHandshake reports whether b is a handshake packet and, if so,
// returns its protocol id.
func DecodeHandshake(b []byte) (uint64, bool) {
	if len(b) != HandshakeSize || b[0] != 0 || b[1] != 0 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b[2:]), true
}

// Decode parses a data packet. Callers are expected to have ruled out the
// handshake shape with DecodeHandshake first.
//
// Returns ErrMalformed if a declared blob length is zero or overruns the
// buffer, or if a blob body fails its own decoding.
func Decode(b []byte) (*Packet, error) {
	p := &Packet{}
	for len(b) > 0 {
		if len(b) < LengthPrefixSize {
			return nil, ErrMalformed
		}
		size := int(binary.BigEndian.Uint16(b))
		b = b[LengthPrefixSize:]
		if size == 0 || size > len(b) {
			return nil, ErrMalformed
		}
		blob, err := decodeBlob(b[:size])
		if err != nil {
			return nil, err
		}
		p.Blobs = append(p.Blobs, blob)
		b = b[size:]
	}
	return p, nil
}
