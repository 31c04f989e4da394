package clienthellod

import "testing"

func TestVarintSize(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1},
		{63, 1},
		{64, 2},
		{16383, 2},
		{16384, 4},
		{1073741823, 4},
		{1073741824, 8},
		{4611686018427387903, 8},
	}
	for _, tc := range cases {
		if got := VarintSize(tc.v); got != tc.want {
			t.Errorf("VarintSize(%d) = %d, want %d", tc.v, got, tc.want)
		}
	}
}

func TestVarintSizeOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("VarintSize did not panic on an out-of-range value")
		}
	}()
	VarintSize(1 << 62)
}

func TestAppendAndReadVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 37, 63, 64, 16383, 16384, 1073741823, 1073741824, 4611686018427387903}
	for _, v := range values {
		buf := AppendVarint(nil, v)
		if len(buf) != VarintSize(v) {
			t.Fatalf("AppendVarint(%d): got %d bytes, want %d", v, len(buf), VarintSize(v))
		}
		c := NewCursor(buf)
		got, ok := ReadVarint(c)
		if !ok {
			t.Fatalf("ReadVarint failed to decode %d from %x", v, buf)
		}
		if got != v {
			t.Errorf("ReadVarint round trip: got %d, want %d", got, v)
		}
		if !c.Done() {
			t.Errorf("ReadVarint(%d) left %d unread bytes", v, c.Len())
		}
	}
}

func TestReadVarintKnownEncodings(t *testing.T) {
	// RFC 9000 Appendix A examples.
	cases := []struct {
		buf  []byte
		want uint64
	}{
		{[]byte{0xc2, 0x19, 0x7c, 0x5e, 0xff, 0x14, 0xe8, 0x8c}, 151288809941952652},
		{[]byte{0x9d, 0x7f, 0x3e, 0x7d}, 494878333},
		{[]byte{0x7b, 0xbd}, 15293},
		{[]byte{0x25}, 37},
		{[]byte{0x40, 0x25}, 37},
	}
	for _, tc := range cases {
		c := NewCursor(tc.buf)
		got, ok := ReadVarint(c)
		if !ok {
			t.Fatalf("ReadVarint(%x) failed", tc.buf)
		}
		if got != tc.want {
			t.Errorf("ReadVarint(%x) = %d, want %d", tc.buf, got, tc.want)
		}
	}
}

func TestReadVarintTruncatedInputDoesNotAdvance(t *testing.T) {
	// First byte declares an 8-byte varint but only 3 bytes follow.
	buf := []byte{0xc2, 0x19, 0x7c}
	c := NewCursor(buf)
	if _, ok := ReadVarint(c); ok {
		t.Fatal("ReadVarint succeeded on truncated input")
	}
	if c.Offset() != 0 {
		t.Errorf("ReadVarint left offset at %d after failure, want 0", c.Offset())
	}
}

func TestReadVarintEmptyCursor(t *testing.T) {
	c := NewCursor(nil)
	if _, ok := ReadVarint(c); ok {
		t.Fatal("ReadVarint succeeded on empty input")
	}
}
