package message

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gramnet/gram/pkg/wire"
)

func frag(id uint32, reliable bool, total, offset int, data []byte) *wire.Fragment {
	return &wire.Fragment{
		ID:          id,
		Reliable:    reliable,
		TotalLength: uint32(total),
		Offset:      uint32(offset),
		Data:        data,
	}
}

func TestAssemblerSingleFragment(t *testing.T) {
	a := NewAssembler(1 << 20)
	now := time.Now()

	data, done, err := a.Add(now, frag(1, true, 5, 0, []byte("hello")))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !done {
		t.Fatal("single full fragment did not complete the message")
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Errorf("data = %q", data)
	}
	if a.PartialCount() != 0 {
		t.Errorf("partials = %d after completion", a.PartialCount())
	}
	if a.CompletedCount() != 1 {
		t.Errorf("completed = %d, want 1 (reliable id retained)", a.CompletedCount())
	}
}

func TestAssemblerOutOfOrder(t *testing.T) {
	a := NewAssembler(1 << 20)
	now := time.Now()

	full := []byte("the quick brown fox jumps")
	// Arrival order: middle, end, start.
	parts := [][3]int{{10, 20, 0}, {20, 25, 0}, {0, 10, 0}}
	for i, p := range parts {
		data, done, err := a.Add(now, frag(7, true, len(full), p[0], full[p[0]:p[1]]))
		if err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
		if i < len(parts)-1 && done {
			t.Fatalf("completed after %d of %d fragments", i+1, len(parts))
		}
		if i == len(parts)-1 {
			if !done {
				t.Fatal("not complete after all fragments")
			}
			if !bytes.Equal(data, full) {
				t.Errorf("data = %q, want %q", data, full)
			}
		}
	}
}

func TestAssemblerDuplicateCompletedSuppressed(t *testing.T) {
	a := NewAssembler(1 << 20)
	now := time.Now()

	f := frag(3, true, 4, 0, []byte("abcd"))
	if _, done, _ := a.Add(now, f); !done {
		t.Fatal("message did not complete")
	}

	// Retransmission after completion: suppressed, no new partial.
	data, done, err := a.Add(now.Add(time.Millisecond), f)
	if err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}
	if done || data != nil {
		t.Fatal("duplicate reliable message delivered twice")
	}
	if a.PartialCount() != 0 {
		t.Error("duplicate created a ghost partial")
	}
}

func TestAssemblerOverlapIdempotent(t *testing.T) {
	a := NewAssembler(1 << 20)
	now := time.Now()

	full := []byte("abcdefghij")
	if _, _, err := a.Add(now, frag(9, true, 10, 0, full[0:6])); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Overlapping retransmission with identical bytes is fine.
	if _, _, err := a.Add(now, frag(9, true, 10, 4, full[4:8])); err != nil {
		t.Fatalf("Add overlap: %v", err)
	}
	// Overlapping bytes that disagree are a protocol violation.
	bad := frag(9, true, 10, 4, []byte("XXXX"))
	if _, _, err := a.Add(now, bad); !errors.Is(err, ErrFragmentMismatch) {
		t.Fatalf("conflicting overlap error = %v, want ErrFragmentMismatch", err)
	}

	// The entry survives the bad fragment and can still complete.
	data, done, err := a.Add(now, frag(9, true, 10, 6, full[6:10]))
	if err != nil || !done {
		t.Fatalf("Add final: done=%v err=%v", done, err)
	}
	if !bytes.Equal(data, full) {
		t.Errorf("data = %q, want %q", data, full)
	}
}

func TestAssemblerMetadataMismatch(t *testing.T) {
	a := NewAssembler(1 << 20)
	now := time.Now()

	if _, _, err := a.Add(now, frag(5, true, 10, 0, []byte("abc"))); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, _, err := a.Add(now, frag(5, true, 12, 3, []byte("def"))); !errors.Is(err, ErrFragmentMismatch) {
		t.Errorf("total-length mismatch error = %v, want ErrFragmentMismatch", err)
	}
	if _, _, err := a.Add(now, frag(5, false, 10, 3, []byte("def"))); !errors.Is(err, ErrFragmentMismatch) {
		t.Errorf("reliability mismatch error = %v, want ErrFragmentMismatch", err)
	}
}

func TestAssemblerBoundsAndLength(t *testing.T) {
	a := NewAssembler(100)
	now := time.Now()

	if _, _, err := a.Add(now, frag(1, true, 200, 0, []byte("x"))); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("oversized message error = %v, want ErrMessageTooLong", err)
	}
	if _, _, err := a.Add(now, frag(2, true, 10, 8, []byte("abc"))); !errors.Is(err, ErrFragmentBounds) {
		t.Errorf("out-of-bounds fragment error = %v, want ErrFragmentBounds", err)
	}
}

func TestAssemblerEmptyMessage(t *testing.T) {
	a := NewAssembler(1 << 20)
	now := time.Now()

	data, done, err := a.Add(now, frag(11, true, 0, 0, nil))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !done {
		t.Fatal("empty message not complete after its [0,0) fragment")
	}
	if len(data) != 0 {
		t.Errorf("empty message data = %q", data)
	}

	// And it is duplicate-suppressed like any reliable message.
	if _, done, _ := a.Add(now, frag(11, true, 0, 0, nil)); done {
		t.Error("empty message delivered twice")
	}
}

func TestAssemblerSweep(t *testing.T) {
	a := NewAssembler(1 << 20)
	base := time.Now()

	// Unreliable partial that never completes.
	if _, _, err := a.Add(base, frag(20, false, 10, 0, []byte("abc"))); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Reliable partial: must survive sweeps.
	if _, _, err := a.Add(base, frag(21, true, 10, 0, []byte("abc"))); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Completed reliable id.
	if _, done, _ := a.Add(base, frag(22, true, 1, 0, []byte("z"))); !done {
		t.Fatal("message did not complete")
	}

	partialTimeout := 3 * time.Second
	retain := 2 * time.Second

	a.Sweep(base.Add(time.Second), partialTimeout, retain)
	if a.PartialCount() != 2 || a.CompletedCount() != 1 {
		t.Fatalf("early sweep removed state: partials=%d completed=%d", a.PartialCount(), a.CompletedCount())
	}

	a.Sweep(base.Add(10*time.Second), partialTimeout, retain)
	if a.PartialCount() != 1 {
		t.Errorf("partials = %d after sweep, want 1 (reliable survives)", a.PartialCount())
	}
	if a.CompletedCount() != 0 {
		t.Errorf("completed = %d after sweep, want 0", a.CompletedCount())
	}

	// After the completed id was forgotten, a retransmission would start a
	// fresh partial; that is the documented trade-off of the retain window.
	if _, done, _ := a.Add(base.Add(11*time.Second), frag(22, true, 1, 0, []byte("z"))); !done {
		t.Error("retransmission after retain window did not reassemble")
	}
}
