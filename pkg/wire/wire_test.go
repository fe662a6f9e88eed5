package wire

import (
	"bytes"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	buf := EncodeHandshake(0xDEADBEEFCAFE1234)

	if len(buf) != HandshakeSize {
		t.Fatalf("handshake size = %d, want %d", len(buf), HandshakeSize)
	}
	if buf[0] != 0 || buf[1] != 0 {
		t.Fatalf("handshake sentinel bytes = %x %x, want zero", buf[0], buf[1])
	}

	id, ok := DecodeHandshake(buf)
	if !ok {
		t.Fatal("DecodeHandshake rejected a valid handshake")
	}
	if id != 0xDEADBEEFCAFE1234 {
		t.Errorf("protocol id = %#x, want 0xDEADBEEFCAFE1234", id)
	}
}

func TestDecodeHandshakeRejects(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"short", []byte{0, 0, 1, 2, 3}},
		{"long", make([]byte, 11)},
		{"nonzero sentinel", append([]byte{0, 1}, make([]byte, 8)...)},
	}
	for _, c := range cases {
		if _, ok := DecodeHandshake(c.b); ok {
			t.Errorf("%s: accepted as handshake", c.name)
		}
	}
}

func TestDataPacketNeverLooksLikeHandshake(t *testing.T) {
	// Data packets must never begin with a zero length prefix, which is
	// what keeps the handshake sentinel unambiguous.
	p := &Packet{}
	p.Append(&Heartbeat{Timestamp: 7})
	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf[0] == 0 && buf[1] == 0 {
		t.Fatal("data packet begins with zero length prefix")
	}
	if _, ok := DecodeHandshake(buf); ok {
		t.Fatal("data packet decoded as handshake")
	}
}

func TestBlobSizes(t *testing.T) {
	blobs := []Blob{
		&Fragment{ID: 1, Reliable: true, TotalLength: 10, Offset: 5, Data: []byte{1, 2, 3, 4, 5}},
		&Heartbeat{Timestamp: 42},
		&HeartbeatResponse{Timestamp: 42},
		&Ack{ID: 1, Offset: 0, Length: 5},
		&Disconnect{},
	}
	for _, b := range blobs {
		p := &Packet{}
		p.Append(b)
		buf, err := p.Encode()
		if err != nil {
			t.Fatalf("tag %d: Encode: %v", b.Tag(), err)
		}
		if want := LengthPrefixSize + b.Size(); len(buf) != want {
			t.Errorf("tag %d: encoded %d bytes, Size says %d", b.Tag(), len(buf), want)
		}
	}
}

func TestFragmentRoundTrip(t *testing.T) {
	f := &Fragment{
		ID:          0xABCD1234,
		Reliable:    true,
		TotalLength: 200,
		Offset:      100,
		Data:        []byte("hello fragment"),
	}

	p := &Packet{}
	p.Append(f)
	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Blobs) != 1 {
		t.Fatalf("decoded %d blobs, want 1", len(decoded.Blobs))
	}

	g, ok := decoded.Blobs[0].(*Fragment)
	if !ok {
		t.Fatalf("decoded blob is %T, want *Fragment", decoded.Blobs[0])
	}
	if g.ID != f.ID || g.Reliable != f.Reliable || g.TotalLength != f.TotalLength || g.Offset != f.Offset {
		t.Errorf("fragment header mismatch: %+v vs %+v", g, f)
	}
	if !bytes.Equal(g.Data, f.Data) {
		t.Errorf("fragment data mismatch: %q vs %q", g.Data, f.Data)
	}
}

func TestEmptyFragmentRoundTrip(t *testing.T) {
	f := &Fragment{ID: 9, Reliable: true, TotalLength: 0, Offset: 0, Data: nil}

	p := &Packet{}
	p.Append(f)
	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	g := decoded.Blobs[0].(*Fragment)
	if g.TotalLength != 0 || g.Offset != 0 || len(g.Data) != 0 {
		t.Errorf("empty fragment decoded as %+v", g)
	}
}

func TestPacketCoalescing(t *testing.T) {
	p := &Packet{}
	p.Append(&Fragment{ID: 1, Reliable: true, TotalLength: 3, Offset: 0, Data: []byte{9, 9, 9}})
	p.Append(&Ack{ID: 7, Offset: 0, Length: 64})
	p.Append(&Heartbeat{Timestamp: 111})
	p.Append(&HeartbeatResponse{Timestamp: 222})
	p.Append(&Disconnect{})

	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) != p.Size() {
		t.Errorf("encoded %d bytes, Size says %d", len(buf), p.Size())
	}

	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Blobs) != 5 {
		t.Fatalf("decoded %d blobs, want 5", len(decoded.Blobs))
	}

	wantTags := []uint8{TagFragment, TagAck, TagHeartbeat, TagHeartbeatResponse, TagDisconnect}
	for i, b := range decoded.Blobs {
		if b.Tag() != wantTags[i] {
			t.Errorf("blob %d tag = %d, want %d", i, b.Tag(), wantTags[i])
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	heartbeat := func() []byte {
		p := &Packet{}
		p.Append(&Heartbeat{Timestamp: 1})
		buf, _ := p.Encode()
		return buf
	}()

	cases := []struct {
		name string
		b    []byte
	}{
		{"dangling length prefix", []byte{0x00}},
		{"zero blob length", []byte{0x00, 0x00, 0xFF}},
		{"length overruns buffer", []byte{0x00, 0x05, TagDisconnect}},
		{"unknown tag", []byte{0x00, 0x01, 0x09}},
		{"short heartbeat body", []byte{0x00, 0x03, TagHeartbeat, 0x01, 0x02}},
		{"short ack body", []byte{0x00, 0x05, TagAck, 1, 2, 3, 4}},
		{"disconnect with body", []byte{0x00, 0x02, TagDisconnect, 0x00}},
		{"short fragment header", []byte{0x00, 0x04, TagFragment, 1, 2, 3}},
		{"trailing garbage after valid blob", append(heartbeat, 0x00)},
	}
	for _, c := range cases {
		if _, err := Decode(c.b); err == nil {
			t.Errorf("%s: decoded without error", c.name)
		}
	}
}

func TestDecodeFragmentLengthMismatch(t *testing.T) {
	p := &Packet{}
	p.Append(&Fragment{ID: 1, Reliable: false, TotalLength: 8, Offset: 0, Data: []byte{1, 2, 3, 4}})
	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Corrupt the fragment length field (last 4 header bytes) so it
	// disagrees with the actual payload length.
	buf[LengthPrefixSize+TagSize+13+3] = 0xFF

	if _, err := Decode(buf); err == nil {
		t.Fatal("fragment with mismatched length field decoded without error")
	}
}

func TestDecodeFragmentBadReliableByte(t *testing.T) {
	p := &Packet{}
	p.Append(&Fragment{ID: 1, Reliable: false, TotalLength: 1, Offset: 0, Data: []byte{7}})
	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf[LengthPrefixSize+TagSize+4] = 2

	if _, err := Decode(buf); err == nil {
		t.Fatal("fragment with reliable byte 2 decoded without error")
	}
}

func TestFragmentAck(t *testing.T) {
	f := &Fragment{ID: 5, Reliable: true, TotalLength: 100, Offset: 40, Data: make([]byte, 20)}
	ack := f.Ack()
	if ack == nil {
		t.Fatal("reliable fragment produced no ack")
	}
	if ack.ID != 5 || ack.Offset != 40 || ack.Length != 20 {
		t.Errorf("ack = %+v, want {5 40 20}", ack)
	}

	u := &Fragment{ID: 5, Reliable: false, Data: make([]byte, 20)}
	if u.Ack() != nil {
		t.Error("unreliable fragment produced an ack")
	}
}

func TestSpaceLeft(t *testing.T) {
	p := &Packet{}
	mtu := 64
	if got := p.SpaceLeft(mtu); got != mtu-LengthPrefixSize {
		t.Errorf("empty packet space = %d, want %d", got, mtu-LengthPrefixSize)
	}

	p.Append(&Heartbeat{Timestamp: 1})
	used := LengthPrefixSize + (&Heartbeat{}).Size()
	if got := p.SpaceLeft(mtu); got != mtu-used-LengthPrefixSize {
		t.Errorf("space after heartbeat = %d, want %d", got, mtu-used-LengthPrefixSize)
	}

	if got := p.SpaceLeft(used); got != 0 {
		t.Errorf("space at exact fit = %d, want 0", got)
	}
}
