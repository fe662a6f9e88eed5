package discovery

import (
	"errors"
	"testing"
)

func TestTXTRoundTrip(t *testing.T) {
	txt := BuildTXT(0xDEADBEEF12345678)

	id, err := ParseTXT(txt)
	if err != nil {
		t.Fatalf("ParseTXT: %v", err)
	}
	if id != 0xDEADBEEF12345678 {
		t.Errorf("protocol id = %#x, want 0xDEADBEEF12345678", id)
	}
}

func TestParseTXT(t *testing.T) {
	cases := []struct {
		name    string
		txt     []string
		want    uint64
		wantErr error
	}{
		{"plain", []string{"pid=2a", "v=1"}, 0x2a, nil},
		{"extra keys ignored", []string{"x=y", "pid=ff", "v=1"}, 0xff, nil},
		{"zero id", []string{"pid=0"}, 0, nil},
		{"missing pid", []string{"v=1"}, 0, ErrMissingProtocolID},
		{"empty record", nil, 0, ErrMissingProtocolID},
		{"garbage value", []string{"pid=zz"}, 0, ErrInvalidTXT},
		{"empty value", []string{"pid="}, 0, ErrInvalidTXT},
	}

	for _, c := range cases {
		id, err := ParseTXT(c.txt)
		if !errors.Is(err, c.wantErr) {
			t.Errorf("%s: err = %v, want %v", c.name, err, c.wantErr)
			continue
		}
		if err == nil && id != c.want {
			t.Errorf("%s: id = %#x, want %#x", c.name, id, c.want)
		}
	}
}
