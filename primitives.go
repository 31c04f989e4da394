package clienthellod

// Fixed-width and length-prefixed primitive readers shared by the
// ClientHello and extension parsers. Grounded on msquic's TlsReadUint16 and
// TlsReadUint24 (crypto_tls.c) and on the byte-at-a-time field reads in the
// teacher's uTLS-based ClientHello parsing (clienthello.go); reworked here
// as methods on Cursor so every field read shares one bounds-checked path.

// ReadUint16 reads a big-endian 16-bit field.
func (c *Cursor) ReadUint16() (uint16, bool) {
	b, ok := c.Bytes(2)
	if !ok {
		return 0, false
	}
	return uint16(b[0])<<8 | uint16(b[1]), true
}

// ReadUint24 reads a big-endian 24-bit field, as used by TLS handshake
// message lengths and vector lengths.
func (c *Cursor) ReadUint24() (uint32, bool) {
	b, ok := c.Bytes(3)
	if !ok {
		return 0, false
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), true
}

// ReadUint32 reads a big-endian 32-bit field.
func (c *Cursor) ReadUint32() (uint32, bool) {
	b, ok := c.Bytes(4)
	if !ok {
		return 0, false
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// ReadUint16LengthPrefixed reads a 16-bit length followed by that many
// bytes, returning the inner payload as a borrowed slice. This is the TLS
// "opaque foo<0..2^16-1>" vector shape used by extensions, ALPN protocol
// lists, and the extensions block itself.
func (c *Cursor) ReadUint16LengthPrefixed() ([]byte, bool) {
	n, ok := c.ReadUint16()
	if !ok {
		return nil, false
	}
	return c.Bytes(int(n))
}

// ReadUint8LengthPrefixed reads an 8-bit length followed by that many bytes,
// the "opaque foo<0..255>" vector shape used by SNI hostnames and ALPN
// protocol name entries.
func (c *Cursor) ReadUint8LengthPrefixed() ([]byte, bool) {
	n, ok := c.Byte()
	if !ok {
		return nil, false
	}
	return c.Bytes(int(n))
}
