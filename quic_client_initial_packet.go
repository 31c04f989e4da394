package clienthellod

import (
	"errors"
	"fmt"
)

var ErrNoQUICClientHello = errors.New("no QUIC ClientHello found in the packet")

// ClientInitialPacket is a single-packet convenience parse: it assumes the
// entire ClientHello arrived in the one Initial packet handed to ParseQUICCIP,
// with no CRYPTO reassembly across multiple packets. GatheredClientInitials
// (quic_client_initial.go) is the fuller pipeline for ClientHellos that span
// more than one Initial packet's CRYPTO frames.
type ClientInitialPacket struct {
	raw []byte

	QHdr *QUICHeader      `json:"quic_header,omitempty"`               // QUIC header, set by ParseQUICCIP
	QCH  *QUICClientHello `json:"quic_client_hello,omitempty"`         // TLS ClientHello, set by ParseQUICCIP
	QTP  *TransportParams `json:"quic_transport_parameters,omitempty"` // QUIC Transport Parameters, set by ParseQUICCIP

	UserAgent string `json:"user_agent,omitempty"` // User-Agent header, set by the caller
}

func ParseQUICCIP(p []byte) (*ClientInitialPacket, error) {
	qHdr, err := DecodeQUICHeaderAndFrames(p)
	if err != nil {
		return nil, err
	}

	reconstructor := NewQUICClientHelloReconstructor(qHdr.VersionUint32())
	if err := reconstructor.FromFrames(qHdr.frames); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoQUICClientHello, err)
	}

	ch, err := reconstructor.Reconstruct()
	if err != nil {
		return nil, fmt.Errorf("%w, Reconstruct(): %v", ErrNoQUICClientHello, err)
	}

	ch.FingerprintID(true)
	ch.FingerprintID(false)

	return &ClientInitialPacket{
		raw:  p,
		QHdr: qHdr,
		QCH:  ch,
		QTP:  &ch.TransportParams,
	}, nil
}
