package clienthellod

import "errors"

// ClientHello ingest (C3): walks the TLS handshake message framing to find
// and parse a ClientHello, per RFC 8446 Section 4.1.2. Grounded on the
// message-length bookkeeping in the teacher's QUICClientHelloReconstructor
// (quic_clienthello_reconstructor.go) and on msquic's
// QuicCryptoTlsReadClientHello / QuicCryptoTlsGetCompleteTlsMessagesLength
// (crypto_tls.c), reworked around Cursor instead of raw pointer arithmetic.

const (
	handshakeTypeClientHello = 0x01

	// tlsLegacyVersionMin is the lowest legacy client_version a QUIC
	// ClientHello may declare (TLS 1.0); QUIC always negotiates TLS 1.3 via
	// the supported_versions extension, but the outer field must still look
	// like a pre-1.3 ClientHello to middleboxes.
	tlsLegacyVersionMin = 0x0301

	clientHelloHeaderLen       = 1 + 3 // HandshakeType + 3-byte length
	clientRandomOffsetInBody   = 2     // client_version precedes random
	clientRandomLen            = 32
	clientHelloMinPrefixForRnd = clientHelloHeaderLen + clientRandomOffsetInBody + clientRandomLen
)

// ReadInitial parses the concatenation of TLS handshake messages carried by
// a QUIC Initial packet's CRYPTO stream. quicVersion selects which QUIC
// Transport Parameters extension type code the dispatcher looks for. It
// returns StatusSuccess once a complete ClientHello has been parsed and its
// ALPN and Transport Parameters extensions located, StatusPending if buf
// ends mid-message (the caller should retry once more CRYPTO bytes arrive),
// or StatusInvalidParameter if buf is malformed.
func ReadInitial(quicVersion uint32, buf []byte, info *NewConnectionInfo) Status {
	c := NewCursor(buf)
	sawClientHello := false

	for !c.Done() {
		if c.Len() < clientHelloHeaderLen {
			return StatusPending
		}

		msgType, _ := c.Byte()
		length, _ := c.ReadUint24()

		if !sawClientHello && msgType != handshakeTypeClientHello {
			return StatusInvalidParameter
		}

		if c.Len() < int(length) {
			return StatusPending
		}
		body, _ := c.Bytes(int(length))

		if msgType == handshakeTypeClientHello {
			if sawClientHello {
				// A second ClientHello in the same flight is not part of
				// this protocol; treat it as opaque and keep scanning.
				continue
			}
			sawClientHello = true
			if st := parseClientHelloBody(quicVersion, body, info); st != StatusSuccess {
				return st
			}
		}
	}

	if !sawClientHello {
		return StatusPending
	}
	if info.ClientALPNList == nil {
		return StatusInvalidParameter
	}
	return StatusSuccess
}

// parseClientHelloBody parses the body of a single ClientHello handshake
// message (everything after its 4-byte header) per spec Section 4.3.
func parseClientHelloBody(quicVersion uint32, body []byte, info *NewConnectionInfo) Status {
	c := NewCursor(body)

	clientVersion, ok := c.ReadUint16()
	if !ok || clientVersion < tlsLegacyVersionMin {
		return StatusInvalidParameter
	}

	if !c.Skip(clientRandomLen) {
		return StatusInvalidParameter
	}

	sessionID, ok := c.ReadUint8LengthPrefixed()
	if !ok || len(sessionID) > 32 {
		return StatusInvalidParameter
	}

	cipherSuites, ok := c.ReadUint16LengthPrefixed()
	if !ok || len(cipherSuites)%2 != 0 {
		return StatusInvalidParameter
	}

	compressionMethods, ok := c.ReadUint8LengthPrefixed()
	if !ok || len(compressionMethods) < 1 {
		return StatusInvalidParameter
	}

	if c.Len() < 2 {
		// No extensions vector at all: a legal (if unusual) ClientHello.
		return StatusSuccess
	}

	extensions, ok := c.ReadUint16LengthPrefixed()
	if !ok {
		return StatusInvalidParameter
	}

	return readExtensions(quicVersion, extensions, info)
}

var errClientRandomTooShort = errors.New("clienthellod: buffer too short to contain a ClientHello random")

// ReadClientRandom copies the 32-byte client random out of a ClientHello
// handshake message (including its 4-byte header) into secrets, for key-log
// taps. buf must be at least 4+2+32 bytes.
func ReadClientRandom(buf []byte, secrets *TlsSecrets) error {
	if len(buf) < clientHelloMinPrefixForRnd {
		return errClientRandomTooShort
	}
	copy(secrets.ClientRandom[:], buf[clientHelloHeaderLen+clientRandomOffsetInBody:clientHelloMinPrefixForRnd])
	secrets.IsSet.ClientRandom = true
	return nil
}
