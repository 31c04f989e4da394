package clienthellod

// Cursor is a bounds-checked read position over an immutable byte slice. Every
// read method checks the remaining length before touching the buffer and only
// advances the offset on success, so a truncated or adversarial input never
// produces an out-of-bounds access or a partially-advanced cursor.
//
// Cursor deliberately does not copy buf; reads that return a slice (Bytes,
// Remaining) borrow directly into it. Callers must not mutate buf while any
// value derived from the Cursor is still in use.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Len returns the number of bytes remaining to be read.
func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

// Offset returns the current read position.
func (c *Cursor) Offset() int {
	return c.off
}

// Done reports whether the cursor has consumed the entire buffer.
func (c *Cursor) Done() bool {
	return c.off >= len(c.buf)
}

// Byte reads a single byte, advancing the cursor by one.
func (c *Cursor) Byte() (byte, bool) {
	if c.Len() < 1 {
		return 0, false
	}
	b := c.buf[c.off]
	c.off++
	return b, true
}

// Bytes returns the next n bytes as a borrowed slice into the underlying
// buffer, advancing the cursor by n. It fails without advancing if fewer than
// n bytes remain.
func (c *Cursor) Bytes(n int) ([]byte, bool) {
	if n < 0 || c.Len() < n {
		return nil, false
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, true
}

// Skip advances the cursor by n bytes without returning them, failing without
// advancing if fewer than n bytes remain.
func (c *Cursor) Skip(n int) bool {
	if n < 0 || c.Len() < n {
		return false
	}
	c.off += n
	return true
}

// Remaining returns every byte not yet consumed, without advancing the
// cursor.
func (c *Cursor) Remaining() []byte {
	return c.buf[c.off:]
}

// Sub returns a new Cursor restricted to the next n bytes, advancing this
// cursor past them. Used by the extension dispatcher to hand each extension's
// payload to a specialized sub-parser without letting it read past its own
// bounds.
func (c *Cursor) Sub(n int) (*Cursor, bool) {
	b, ok := c.Bytes(n)
	if !ok {
		return nil, false
	}
	return NewCursor(b), true
}
