package clienthellod

// Transport Parameter decoder. Grounded on msquic's
// QuicCryptoTlsDecodeTransportParameters (original_source/src/core/crypto_tls.c):
// same default-population preamble, same duplicate-id bitmask limited to ids
// below 64, same per-id switch with range checks, same cross-parameter
// min/max ack-delay check after the loop. The teacher's
// ParseQUICTransportParameters (quic_transport_parameters.go) covers a
// subset of this registry; this decoder fills in the ids it omits
// (preferred_address gating, CIBIR, min_ack_delay, reliable_reset_enabled,
// version_info, grease_quic_bit, disable_1rtt_encryption, enable_timestamp).

const (
	maxInitialMaxStreams = 1 << 60
	maxAckDelayExponent  = 20
	maxMaxAckDelayMs     = 1<<14 - 1
	minMaxUDPPayloadSize = 1200
	maxMinAckDelayUs     = 1<<24 - 1
)

// decodeSingleVarint decodes payload as exactly one varint, rejecting it if
// any bytes are left over -- i.e. the declared transport-parameter length
// must equal the varint's own encoded size, not merely bound it.
func decodeSingleVarint(payload []byte) (uint64, bool) {
	c := NewCursor(payload)
	v, ok := ReadVarint(c)
	if !ok || !c.Done() {
		return 0, false
	}
	return v, true
}

func decodeConnectionIDParam(payload []byte, dst *ConnectionIDParam, flag *bool) bool {
	if len(payload) > maxConnectionIDLen {
		return false
	}
	dst.Length = uint8(len(payload))
	copy(dst.Data[:], payload)
	*flag = true
	return true
}

// decodeOneTransportParam dispatches a single (id, payload) pair into p. It
// returns false when the payload violates the id's shape or range; the
// default branch covers both GREASE-reserved ids and genuinely unknown ids,
// both silently ignored per RFC 9000 Section 18.1.
func decodeOneTransportParam(isServerTP bool, id uint64, payload []byte, p *TransportParams) bool {
	switch id {
	case tpIDOriginalDestinationConnectionID:
		if !isServerTP {
			return false
		}
		return decodeConnectionIDParam(payload, &p.OriginalDestinationConnectionID, &p.Flags.OriginalDestinationConnectionID)

	case tpIDIdleTimeout:
		v, ok := decodeSingleVarint(payload)
		if !ok {
			return false
		}
		p.IdleTimeout, p.Flags.IdleTimeout = v, true

	case tpIDStatelessResetToken:
		if !isServerTP || len(payload) != statelessResetTokenLen {
			return false
		}
		copy(p.StatelessResetToken[:], payload)
		p.Flags.StatelessResetToken = true

	case tpIDMaxUDPPayloadSize:
		v, ok := decodeSingleVarint(payload)
		if !ok || v < minMaxUDPPayloadSize || v > defaultMaxUDPPayloadSize {
			return false
		}
		p.MaxUDPPayloadSize, p.Flags.MaxUDPPayloadSize = v, true

	case tpIDInitialMaxData:
		v, ok := decodeSingleVarint(payload)
		if !ok {
			return false
		}
		p.InitialMaxData, p.Flags.InitialMaxData = v, true

	case tpIDInitialMaxStreamDataBidiLocal:
		v, ok := decodeSingleVarint(payload)
		if !ok {
			return false
		}
		p.InitialMaxStreamDataBidiLocal, p.Flags.InitialMaxStreamDataBidiLocal = v, true

	case tpIDInitialMaxStreamDataBidiRemote:
		v, ok := decodeSingleVarint(payload)
		if !ok {
			return false
		}
		p.InitialMaxStreamDataBidiRemote, p.Flags.InitialMaxStreamDataBidiRemote = v, true

	case tpIDInitialMaxStreamDataUni:
		v, ok := decodeSingleVarint(payload)
		if !ok {
			return false
		}
		p.InitialMaxStreamDataUni, p.Flags.InitialMaxStreamDataUni = v, true

	case tpIDInitialMaxStreamsBidi:
		v, ok := decodeSingleVarint(payload)
		if !ok || v > maxInitialMaxStreams {
			return false
		}
		p.InitialMaxStreamsBidi, p.Flags.InitialMaxStreamsBidi = v, true

	case tpIDInitialMaxStreamsUni:
		v, ok := decodeSingleVarint(payload)
		if !ok || v > maxInitialMaxStreams {
			return false
		}
		p.InitialMaxStreamsUni, p.Flags.InitialMaxStreamsUni = v, true

	case tpIDAckDelayExponent:
		v, ok := decodeSingleVarint(payload)
		if !ok || v > maxAckDelayExponent {
			return false
		}
		p.AckDelayExponent, p.Flags.AckDelayExponent = v, true

	case tpIDMaxAckDelay:
		v, ok := decodeSingleVarint(payload)
		if !ok || v > maxMaxAckDelayMs {
			return false
		}
		p.MaxAckDelay, p.Flags.MaxAckDelay = v, true

	case tpIDDisableActiveMigration:
		if len(payload) != 0 {
			return false
		}
		p.Flags.DisableActiveMigration = true

	case tpIDPreferredAddress:
		if !isServerTP {
			return false
		}
		// Tolerated but not parsed; the spec defers a full RFC 9000
		// Section 18.2 implementation.
		p.Flags.PreferredAddress = true

	case tpIDActiveConnectionIDLimit:
		v, ok := decodeSingleVarint(payload)
		if !ok || v < 2 {
			return false
		}
		p.ActiveConnectionIDLimit, p.Flags.ActiveConnectionIDLimit = v, true

	case tpIDInitialSourceConnectionID:
		return decodeConnectionIDParam(payload, &p.InitialSourceConnectionID, &p.Flags.InitialSourceConnectionID)

	case tpIDRetrySourceConnectionID:
		if !isServerTP {
			return false
		}
		return decodeConnectionIDParam(payload, &p.RetrySourceConnectionID, &p.Flags.RetrySourceConnectionID)

	case tpIDMaxDatagramFrameSize:
		v, ok := decodeSingleVarint(payload)
		if !ok {
			return false
		}
		p.MaxDatagramFrameSize, p.Flags.MaxDatagramFrameSize = v, true

	case tpIDVersionInformation:
		var buf []byte
		if len(payload) > 0 {
			buf = make([]byte, len(payload))
			copy(buf, payload)
		}
		p.VersionInfo, p.Flags.VersionInfo = buf, true

	case tpIDCIBIREncoding:
		cc := NewCursor(payload)
		length, ok := ReadVarint(cc)
		if !ok {
			return false
		}
		offset, ok := ReadVarint(cc)
		if !ok || !cc.Done() {
			return false
		}
		if length < 1 || length > maxConnectionIDLen || offset > maxConnectionIDLen || length+offset > maxConnectionIDLen {
			return false
		}
		p.CibirEncodingLength, p.CibirEncodingOffset, p.Flags.CibirEncoding = length, offset, true

	case tpIDGreaseQuicBit:
		if len(payload) != 0 {
			return false
		}
		p.Flags.GreaseQuicBit = true

	case tpIDEnableTimestamp:
		v, ok := decodeSingleVarint(payload)
		if !ok || v > 3 {
			return false
		}
		p.EnableTimestamp, p.Flags.EnableTimestamp = v, true

	case tpIDDisable1RTTEncryption:
		if len(payload) != 0 {
			return false
		}
		p.Flags.DisableOneRTTEncryption = true

	case tpIDMinAckDelay:
		v, ok := decodeSingleVarint(payload)
		if !ok || v > maxMinAckDelayUs {
			return false
		}
		p.MinAckDelay, p.Flags.MinAckDelay = v, true

	case tpIDReliableResetEnabled:
		if len(payload) != 0 {
			return false
		}
		p.Flags.ReliableResetEnabled = true

	default:
		// Includes every GREASE-reserved id (id%31==27) and any id not in
		// this registry: both are ignored by protocol rule.
	}
	return true
}

// DecodeTransportParameters decodes buf -- the QUIC Transport Parameters
// extension payload -- into p. isServerTP is true when the parameters being
// decoded are the peer's and that peer is a QUIC server, gating the
// server-only parameter ids. p is re-zeroed and populated with RFC defaults
// before decoding begins; any previously-owned VersionInfo is released
// first. On failure p is left in a valid, default-populated state that the
// caller must discard along with the rest of the malformed ClientHello.
func DecodeTransportParameters(isServerTP bool, buf []byte, p *TransportParams) bool {
	Cleanup(p)
	*p = TransportParams{
		MaxUDPPayloadSize:       defaultMaxUDPPayloadSize,
		AckDelayExponent:        defaultAckDelayExponent,
		MaxAckDelay:             defaultMaxAckDelay,
		ActiveConnectionIDLimit: defaultActiveConnectionIDLimit,
	}

	c := NewCursor(buf)
	var seenMask uint64

	for !c.Done() {
		id, ok := ReadVarint(c)
		if !ok {
			return false
		}

		if id < 64 {
			bit := uint64(1) << uint(id)
			if seenMask&bit != 0 {
				return false
			}
			seenMask |= bit
		}

		length, ok := ReadVarint(c)
		if !ok || length > uint64(c.Len()) {
			return false
		}
		payload, _ := c.Bytes(int(length))

		if !decodeOneTransportParam(isServerTP, id, payload, p) {
			return false
		}
	}

	if p.Flags.MinAckDelay && p.Flags.MaxAckDelay && p.MinAckDelay > p.MaxAckDelay*1000 {
		return false
	}

	return true
}
