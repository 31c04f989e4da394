package clienthellod

import (
	"io"
)

// QUIC variable-length integer codec (RFC 9000 Section 16). The two most
// significant bits of the first byte select the encoding length; the
// remaining bits of that length, big-endian, hold the value.
//
// Grounded on the teacher's ReadNextVLI/DecodeVLI (quic_common.go), rewritten
// as free functions over *Cursor so the rest of the codec can read a varint
// with the same bounds-checked, no-partial-advance contract as every other
// Cursor read.

const (
	varint1ByteMax = 1<<6 - 1
	varint2ByteMax = 1<<14 - 1
	varint4ByteMax = 1<<30 - 1
	varint8ByteMax = 1<<62 - 1
)

// VarintSize returns the number of bytes needed to encode v as a QUIC varint:
// 1, 2, 4, or 8. It panics if v exceeds the 62-bit range a QUIC varint can
// hold; callers in this codec only ever size values that were validated
// beforehand, so this is a programmer-error assertion, not a protocol error.
func VarintSize(v uint64) int {
	switch {
	case v <= varint1ByteMax:
		return 1
	case v <= varint2ByteMax:
		return 2
	case v <= varint4ByteMax:
		return 4
	case v <= varint8ByteMax:
		return 8
	default:
		assertf(false, "clienthellod: value %d exceeds QUIC varint range", v)
		return 0
	}
}

// AppendVarint encodes v as a QUIC varint and appends it to dst, returning
// the extended slice.
func AppendVarint(dst []byte, v uint64) []byte {
	switch n := VarintSize(v); n {
	case 1:
		return append(dst, byte(v))
	case 2:
		return append(dst, byte(v>>8)|0x40, byte(v))
	case 4:
		return append(dst, byte(v>>24)|0x80, byte(v>>16), byte(v>>8), byte(v))
	default: // 8
		return append(dst, byte(v>>56)|0xc0, byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// ReadVarint reads a QUIC varint from c, returning the decoded value and
// true on success. On a truncated input it returns false and leaves c's
// offset unchanged.
func ReadVarint(c *Cursor) (uint64, bool) {
	first, ok := c.Byte()
	if !ok {
		return 0, false
	}

	length := 1 << (first >> 6)
	rest, ok := c.Bytes(length - 1)
	if !ok {
		// Roll back the length-prefix byte we already consumed so a failed
		// read never leaves the cursor partially advanced.
		c.off--
		return 0, false
	}

	v := uint64(first & 0x3f)
	for _, b := range rest {
		v = v<<8 | uint64(b)
	}
	return v, true
}

// ReadNextVLI unpacks the next QUIC varint from an io.Reader, returning the
// decoded value and the number of bytes consumed. Kept alongside the
// Cursor-based ReadVarint above for the streaming frame and header parsers
// (quic_frame.go, quic_header.go), which consume a packet as it's read
// rather than from an already-fully-buffered slice.
func ReadNextVLI(r io.Reader) (val uint64, n int, err error) {
	var first [1]byte
	if _, err = io.ReadFull(r, first[:]); err != nil {
		return 0, 0, err
	}

	switch first[0] & 0xc0 {
	case 0x00:
		n = 1
	case 0x40:
		n = 2
	case 0x80:
		n = 4
	default:
		n = 8
	}

	encoded := make([]byte, n)
	encoded[0] = first[0] & 0x3f
	if n > 1 {
		if _, err = io.ReadFull(r, encoded[1:]); err != nil {
			return 0, 0, err
		}
	}

	for i := 0; i < n; i++ {
		val = val<<8 | uint64(encoded[i])
	}
	return val, n, nil
}
