package clienthellod

// Transport Parameter encoder. Grounded on msquic's
// QuicCryptoTlsEncodeTransportParameters (original_source/src/core/crypto_tls.c),
// which walks the same parameter list in the same order computing a running
// length before writing; TlsWriteTransportParam / TlsWriteTransportParamVarInt
// correspond to the per-entry varint(id)/varint(length)/payload write below.

type tpEntry struct {
	id      uint64
	payload []byte
}

// collectTransportParamEntries walks TransportParams in the registry's
// canonical order (the table in Section 4.5, top to bottom) and returns one
// entry per flagged parameter. This single walk backs both passes of the
// encoder: entries are first summed for required_len, then written, so the
// two passes can never disagree about which parameters are present.
func collectTransportParamEntries(isServerTP bool, p *TransportParams, testParam *PrivateTransportParameter) []tpEntry {
	var entries []tpEntry
	add := func(id uint64, payload []byte) {
		entries = append(entries, tpEntry{id, payload})
	}

	if p.Flags.OriginalDestinationConnectionID {
		assertf(isServerTP, "clienthellod: original_destination_connection_id is a server-only transport parameter")
		add(tpIDOriginalDestinationConnectionID, p.OriginalDestinationConnectionID.Bytes())
	}
	if p.Flags.IdleTimeout {
		add(tpIDIdleTimeout, AppendVarint(nil, p.IdleTimeout))
	}
	if p.Flags.StatelessResetToken {
		assertf(isServerTP, "clienthellod: stateless_reset_token is a server-only transport parameter")
		add(tpIDStatelessResetToken, p.StatelessResetToken[:])
	}
	if p.Flags.MaxUDPPayloadSize {
		add(tpIDMaxUDPPayloadSize, AppendVarint(nil, p.MaxUDPPayloadSize))
	}
	if p.Flags.InitialMaxData {
		add(tpIDInitialMaxData, AppendVarint(nil, p.InitialMaxData))
	}
	if p.Flags.InitialMaxStreamDataBidiLocal {
		add(tpIDInitialMaxStreamDataBidiLocal, AppendVarint(nil, p.InitialMaxStreamDataBidiLocal))
	}
	if p.Flags.InitialMaxStreamDataBidiRemote {
		add(tpIDInitialMaxStreamDataBidiRemote, AppendVarint(nil, p.InitialMaxStreamDataBidiRemote))
	}
	if p.Flags.InitialMaxStreamDataUni {
		add(tpIDInitialMaxStreamDataUni, AppendVarint(nil, p.InitialMaxStreamDataUni))
	}
	if p.Flags.InitialMaxStreamsBidi {
		add(tpIDInitialMaxStreamsBidi, AppendVarint(nil, p.InitialMaxStreamsBidi))
	}
	if p.Flags.InitialMaxStreamsUni {
		add(tpIDInitialMaxStreamsUni, AppendVarint(nil, p.InitialMaxStreamsUni))
	}
	if p.Flags.AckDelayExponent {
		add(tpIDAckDelayExponent, AppendVarint(nil, p.AckDelayExponent))
	}
	if p.Flags.MaxAckDelay {
		add(tpIDMaxAckDelay, AppendVarint(nil, p.MaxAckDelay))
	}
	if p.Flags.DisableActiveMigration {
		add(tpIDDisableActiveMigration, nil)
	}
	if p.Flags.PreferredAddress {
		assertf(isServerTP, "clienthellod: preferred_address is a server-only transport parameter")
		assertf(false, "clienthellod: preferred_address encoding is not implemented")
	}
	if p.Flags.ActiveConnectionIDLimit {
		add(tpIDActiveConnectionIDLimit, AppendVarint(nil, p.ActiveConnectionIDLimit))
	}
	if p.Flags.InitialSourceConnectionID {
		add(tpIDInitialSourceConnectionID, p.InitialSourceConnectionID.Bytes())
	}
	if p.Flags.RetrySourceConnectionID {
		assertf(isServerTP, "clienthellod: retry_source_connection_id is a server-only transport parameter")
		add(tpIDRetrySourceConnectionID, p.RetrySourceConnectionID.Bytes())
	}
	if p.Flags.MaxDatagramFrameSize {
		add(tpIDMaxDatagramFrameSize, AppendVarint(nil, p.MaxDatagramFrameSize))
	}
	if p.Flags.VersionInfo {
		add(tpIDVersionInformation, p.VersionInfo)
	}
	if p.Flags.CibirEncoding {
		payload := AppendVarint(nil, p.CibirEncodingLength)
		payload = AppendVarint(payload, p.CibirEncodingOffset)
		add(tpIDCIBIREncoding, payload)
	}
	if p.Flags.GreaseQuicBit {
		add(tpIDGreaseQuicBit, nil)
	}
	if p.Flags.EnableTimestamp {
		add(tpIDEnableTimestamp, AppendVarint(nil, p.EnableTimestamp))
	}
	if p.Flags.DisableOneRTTEncryption {
		add(tpIDDisable1RTTEncryption, nil)
	}
	if p.Flags.MinAckDelay {
		if p.Flags.MaxAckDelay {
			assertf(p.MinAckDelay <= p.MaxAckDelay*1000,
				"clienthellod: min_ack_delay %dus exceeds max_ack_delay %dms", p.MinAckDelay, p.MaxAckDelay)
		}
		add(tpIDMinAckDelay, AppendVarint(nil, p.MinAckDelay))
	}
	if p.Flags.ReliableResetEnabled {
		add(tpIDReliableResetEnabled, nil)
	}

	if testParam != nil {
		add(testParam.ID, testParam.payload())
	}

	return entries
}

// EncodeTransportParameters encodes p (plus testParam, if supplied) into a
// single buffer of size headerSize+N, where the first headerSize bytes are
// reserved, zero-valued space for the caller's TLS layer to fill with its
// own extension header. isServerTP gates the server-only parameters:
// setting one of them while isServerTP is false is a programmer error and
// panics, not a returned error, since untrusted input can never cause it.
//
// Two passes over the same entry list: the first sums required_len, the
// second writes every entry in the table's canonical order, so encoding the
// same TransportParams twice always produces byte-identical output.
func EncodeTransportParameters(isServerTP bool, p *TransportParams, testParam *PrivateTransportParameter, headerSize int) []byte {
	entries := collectTransportParamEntries(isServerTP, p, testParam)

	requiredLen := 0
	for _, e := range entries {
		requiredLen += VarintSize(e.id) + VarintSize(uint64(len(e.payload))) + len(e.payload)
	}

	out := make([]byte, headerSize, headerSize+requiredLen)
	for _, e := range entries {
		out = AppendVarint(out, e.id)
		out = AppendVarint(out, uint64(len(e.payload)))
		out = append(out, e.payload...)
	}

	assertf(len(out) == headerSize+requiredLen,
		"clienthellod: transport parameter encoder wrote %d bytes, expected %d", len(out)-headerSize, requiredLen)
	return out
}
