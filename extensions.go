package clienthellod

// Extension dispatcher (C4): iterates the TLS extensions vector handed off
// by C3, routing server_name, ALPN, and QUIC Transport Parameters to
// specialized sub-parsers and skipping everything else. Grounded on the
// extension walk in msquic's QuicCryptoTlsReadExtensions and the
// SNI/ALPN sub-parsers QuicCryptoTlsReadSniExtension /
// QuicCryptoTlsReadAlpnExtension (crypto_tls.c), and on the extension-type
// constants the teacher pulls from github.com/gaukas/godicttls
// (clienthello.go's use of dicttls.ExtensionType* identifiers).

const (
	extTypeServerName                    = 0x0000
	extTypeALPN                          = 0x0010
	extTypeQUICTransportParameters       = 0x0039
	extTypeQUICTransportParametersLegacy = 0xffa5 // draft-29

	sniNameTypeHostName = 0x00
)

// QUICVersionDraft29 is the legacy QUIC version whose ClientHello carries
// Transport Parameters under the pre-standardization extension type code.
const QUICVersionDraft29 uint32 = 0xff00001d

// QUICVersion1 is the standardized QUIC version (RFC 9000).
const QUICVersion1 uint32 = 0x00000001

func quicTransportParametersExtensionType(quicVersion uint32) uint16 {
	if quicVersion == QUICVersionDraft29 {
		return extTypeQUICTransportParametersLegacy
	}
	return extTypeQUICTransportParameters
}

// readExtensions walks a TLS extensions vector and populates info's
// ServerName, ClientALPNList, and TransportParams fields.
func readExtensions(quicVersion uint32, buf []byte, info *NewConnectionInfo) Status {
	tpExtType := quicTransportParametersExtensionType(quicVersion)

	c := NewCursor(buf)
	var sawSNI, sawALPN, sawTP bool

	for !c.Done() {
		extType, ok := c.ReadUint16()
		if !ok {
			return StatusInvalidParameter
		}
		payload, ok := c.ReadUint16LengthPrefixed()
		if !ok {
			return StatusInvalidParameter
		}

		switch extType {
		case extTypeServerName:
			if sawSNI {
				return StatusInvalidParameter
			}
			sawSNI = true
			name, ok := readServerNameExtension(payload)
			if !ok {
				return StatusInvalidParameter
			}
			info.ServerName = name

		case extTypeALPN:
			if sawALPN {
				return StatusInvalidParameter
			}
			sawALPN = true
			list, ok := readALPNExtension(payload)
			if !ok {
				return StatusInvalidParameter
			}
			info.ClientALPNList = list

		case tpExtType:
			if sawTP {
				return StatusInvalidParameter
			}
			sawTP = true
			if !DecodeTransportParameters(false, payload, &info.TransportParams) {
				return StatusInvalidParameter
			}

		default:
			// Unknown extension types are ignored, per RFC 8446 Section 4.2.
		}
	}

	if !sawTP {
		return StatusInvalidParameter
	}
	return StatusSuccess
}

// readServerNameExtension parses a ServerNameList and returns the first
// host_name entry. The remainder of the list is still walked so a malformed
// later entry is still caught, even though only the first host_name is
// exposed.
func readServerNameExtension(payload []byte) ([]byte, bool) {
	c := NewCursor(payload)

	list, ok := c.ReadUint16LengthPrefixed()
	if !ok || len(list) < 3 {
		return nil, false
	}

	lc := NewCursor(list)
	var hostName []byte
	found := false
	for !lc.Done() {
		nameType, ok := lc.Byte()
		if !ok {
			return nil, false
		}
		name, ok := lc.ReadUint16LengthPrefixed()
		if !ok {
			return nil, false
		}
		if nameType == sniNameTypeHostName && !found {
			hostName = name
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return hostName, true
}

// readALPNExtension validates a ProtocolNameList and returns its payload
// including each entry's 1-byte length prefix, excluding the outer u16
// list length.
func readALPNExtension(payload []byte) ([]byte, bool) {
	c := NewCursor(payload)

	listLen, ok := c.ReadUint16()
	if !ok || int(listLen) != c.Len() {
		return nil, false
	}
	list := c.Remaining()

	lc := NewCursor(list)
	for !lc.Done() {
		entry, ok := lc.ReadUint8LengthPrefixed()
		if !ok || len(entry) < 1 {
			return nil, false
		}
	}

	return list, true
}
