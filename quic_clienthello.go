package clienthellod

import "bytes"

// QUICClientHello is a TLS ClientHello reassembled from a QUIC Initial
// flight's CRYPTO stream. It carries both the uTLS-derived fingerprint
// (ClientHello, for JA3/JA4-style identification) and the QUIC Transport
// Parameters decoded from the same bytes via the Section 4.5 codec.
type QUICClientHello struct {
	ClientHello

	TransportParams TransportParams
	TPStatus        Status
}

// ParseQUICClientHello parses p -- the reassembled CRYPTO stream of a QUIC
// Initial flight -- as a TLS ClientHello. quicVersion selects which wire
// form of the QUIC Transport Parameters extension to look for.
func ParseQUICClientHello(quicVersion uint32, p []byte) (*QUICClientHello, error) {
	// patch TLS record header to make it a valid TLS record, for the uTLS
	// fingerprinting path below, which expects one.
	record := make([]byte, 5+len(p))
	record[0] = 0x16 // TLS handshake
	record[1] = 0x03 // TLS 1.2, legacy record version
	record[2] = 0x03 // TLS 1.2, legacy record version
	record[3] = byte(len(p) >> 8)
	record[4] = byte(len(p))
	copy(record[5:], p)

	// parse TLS record
	r := bytes.NewReader(record)
	ch, err := ReadClientHello(r)
	if err != nil {
		return nil, err
	}

	if err = ch.ParseClientHello(); err != nil {
		return nil, err
	}

	qch := &QUICClientHello{ClientHello: *ch}

	// p itself -- with no record layer -- is exactly the handshake message
	// stream ReadInitial expects.
	var info NewConnectionInfo
	qch.TPStatus = ReadInitial(quicVersion, p, &info)
	qch.TransportParams = info.TransportParams

	return qch, nil
}

func (qch *QUICClientHello) Raw() []byte {
	return qch.ClientHello.Raw()[5:] // strip TLS record header which is added by ParseQUICClientHello
}
