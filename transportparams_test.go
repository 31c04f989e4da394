package clienthellod

import (
	"bytes"
	"reflect"
	"testing"
)

func TestIsGreaseTransportParameterID(t *testing.T) {
	cases := []struct {
		id   uint64
		want bool
	}{
		{27, true},
		{27 + 31, true},
		{27 + 31*5, true},
		{0, false},
		{1, false},
		{26, false},
		{28, false},
	}
	for _, tc := range cases {
		if got := isGreaseTransportParameterID(tc.id); got != tc.want {
			t.Errorf("isGreaseTransportParameterID(%d) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestTransportParametersEncodeDecodeRoundTrip(t *testing.T) {
	p := &TransportParams{}
	p.IdleTimeout, p.Flags.IdleTimeout = 30000, true
	p.MaxUDPPayloadSize, p.Flags.MaxUDPPayloadSize = 1500, true
	p.InitialMaxData, p.Flags.InitialMaxData = 1 << 20, true
	p.InitialMaxStreamDataBidiLocal, p.Flags.InitialMaxStreamDataBidiLocal = 65536, true
	p.InitialMaxStreamDataBidiRemote, p.Flags.InitialMaxStreamDataBidiRemote = 65536, true
	p.InitialMaxStreamDataUni, p.Flags.InitialMaxStreamDataUni = 65536, true
	p.InitialMaxStreamsBidi, p.Flags.InitialMaxStreamsBidi = 100, true
	p.InitialMaxStreamsUni, p.Flags.InitialMaxStreamsUni = 3, true
	p.AckDelayExponent, p.Flags.AckDelayExponent = 3, true
	p.MaxAckDelay, p.Flags.MaxAckDelay = 25, true
	p.Flags.DisableActiveMigration = true
	p.ActiveConnectionIDLimit, p.Flags.ActiveConnectionIDLimit = 4, true
	p.InitialSourceConnectionID = ConnectionIDParam{Length: 4, Data: [20]byte{0xca, 0xfe, 0xba, 0xbe}}
	p.Flags.InitialSourceConnectionID = true
	p.MaxDatagramFrameSize, p.Flags.MaxDatagramFrameSize = 1200, true
	p.VersionInfo, p.Flags.VersionInfo = []byte{0x00, 0x00, 0x00, 0x01}, true
	p.CibirEncodingLength, p.CibirEncodingOffset, p.Flags.CibirEncoding = 4, 0, true
	p.Flags.GreaseQuicBit = true
	p.EnableTimestamp, p.Flags.EnableTimestamp = 3, true
	p.MinAckDelay, p.Flags.MinAckDelay = 1000, true
	p.Flags.ReliableResetEnabled = true

	encoded := EncodeTransportParameters(false, p, nil, 0)

	var decoded TransportParams
	if !DecodeTransportParameters(false, encoded, &decoded) {
		t.Fatalf("DecodeTransportParameters failed on %x", encoded)
	}

	if !reflect.DeepEqual(decoded, *p) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", decoded, *p)
	}
}

func TestTransportParametersEncoderDeterministic(t *testing.T) {
	p := &TransportParams{}
	p.InitialMaxData, p.Flags.InitialMaxData = 42, true
	p.Flags.GreaseQuicBit = true
	p.ActiveConnectionIDLimit, p.Flags.ActiveConnectionIDLimit = 8, true

	a := EncodeTransportParameters(false, p, nil, 0)
	b := EncodeTransportParameters(false, p, nil, 0)
	if !bytes.Equal(a, b) {
		t.Errorf("two encodes of the same TransportParams differ:\n%x\n%x", a, b)
	}
}

// appendTPEntry appends one well-framed id/length/payload transport
// parameter entry, computing length from the actual encoded payload so
// tests never hand-compute a varint's size.
func appendTPEntry(buf []byte, id uint64, payload []byte) []byte {
	buf = AppendVarint(buf, id)
	buf = AppendVarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

func appendTPVarintEntry(buf []byte, id, value uint64) []byte {
	return appendTPEntry(buf, id, AppendVarint(nil, value))
}

func TestTransportParametersDuplicateIDRejected(t *testing.T) {
	var buf []byte
	buf = appendTPVarintEntry(buf, tpIDIdleTimeout, 30000)
	buf = appendTPVarintEntry(buf, tpIDIdleTimeout, 60000)

	var p TransportParams
	if DecodeTransportParameters(false, buf, &p) {
		t.Fatal("DecodeTransportParameters accepted a duplicate idle_timeout")
	}
}

func TestTransportParametersReservedIDTolerated(t *testing.T) {
	var buf []byte
	buf = AppendVarint(buf, 27)
	buf = AppendVarint(buf, 3)
	buf = append(buf, 0xde, 0xad, 0xbe)
	buf = AppendVarint(buf, tpIDInitialMaxData)
	buf = AppendVarint(buf, 1)
	buf = AppendVarint(buf, 5)

	var p TransportParams
	if !DecodeTransportParameters(false, buf, &p) {
		t.Fatal("DecodeTransportParameters rejected a reserved GREASE id")
	}
	if !p.Flags.InitialMaxData || p.InitialMaxData != 5 {
		t.Errorf("surrounding parameter did not decode: %+v", p)
	}
}

func TestTransportParametersServerOnlyEnforcement(t *testing.T) {
	var buf []byte
	buf = AppendVarint(buf, tpIDStatelessResetToken)
	buf = AppendVarint(buf, statelessResetTokenLen)
	buf = append(buf, make([]byte, statelessResetTokenLen)...)

	var p TransportParams
	if DecodeTransportParameters(false, buf, &p) {
		t.Fatal("DecodeTransportParameters accepted stateless_reset_token from a non-server peer")
	}
	if DecodeTransportParameters(true, buf, &p) != true {
		t.Fatal("DecodeTransportParameters rejected stateless_reset_token from a server peer")
	}
}

func TestEncodeServerOnlyFromClientPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("EncodeTransportParameters did not panic when encoding a server-only parameter with isServerTP=false")
		}
	}()
	p := &TransportParams{}
	p.Flags.StatelessResetToken = true
	EncodeTransportParameters(false, p, nil, 0)
}

func TestDecodeDefaultsApplyWhenAbsent(t *testing.T) {
	var p TransportParams
	if !DecodeTransportParameters(false, nil, &p) {
		t.Fatal("DecodeTransportParameters failed on an empty TP blob")
	}
	if p.MaxUDPPayloadSize != defaultMaxUDPPayloadSize {
		t.Errorf("MaxUDPPayloadSize = %d, want default %d", p.MaxUDPPayloadSize, defaultMaxUDPPayloadSize)
	}
	if p.AckDelayExponent != defaultAckDelayExponent {
		t.Errorf("AckDelayExponent = %d, want default %d", p.AckDelayExponent, defaultAckDelayExponent)
	}
	if p.MaxAckDelay != defaultMaxAckDelay {
		t.Errorf("MaxAckDelay = %d, want default %d", p.MaxAckDelay, defaultMaxAckDelay)
	}
	if p.ActiveConnectionIDLimit != defaultActiveConnectionIDLimit {
		t.Errorf("ActiveConnectionIDLimit = %d, want default %d", p.ActiveConnectionIDLimit, defaultActiveConnectionIDLimit)
	}
}

// TestScenarioS3EncodeKnownBytes matches spec scenario S3: encoding
// {initial_source_connection_id=CAFEBABE, active_connection_id_limit=4}
// with is_server_tp=false, header_size=0 must begin with the literal bytes
// 0f 04 cafebabe 0e 01 04.
func TestScenarioS3EncodeKnownBytes(t *testing.T) {
	p := &TransportParams{}
	p.InitialSourceConnectionID = ConnectionIDParam{Length: 4, Data: [20]byte{0xca, 0xfe, 0xba, 0xbe}}
	p.Flags.InitialSourceConnectionID = true
	p.ActiveConnectionIDLimit, p.Flags.ActiveConnectionIDLimit = 4, true

	got := EncodeTransportParameters(false, p, nil, 0)
	want := []byte{0x0f, 0x04, 0xca, 0xfe, 0xba, 0xbe, 0x0e, 0x01, 0x04}
	if !bytes.Equal(got, want) {
		t.Fatalf("S3 encode = %x, want %x", got, want)
	}
}

// TestScenarioS4DecodeAppliesDefaultsAndOverride matches spec scenario S4:
// decoding S3's output yields the same explicit fields plus RFC defaults for
// everything else, with active_connection_id_limit overridden to 4.
func TestScenarioS4DecodeAppliesDefaultsAndOverride(t *testing.T) {
	buf := []byte{0x0f, 0x04, 0xca, 0xfe, 0xba, 0xbe, 0x0e, 0x01, 0x04}
	var p TransportParams
	if !DecodeTransportParameters(false, buf, &p) {
		t.Fatal("DecodeTransportParameters failed on S3's output")
	}
	if p.MaxUDPPayloadSize != defaultMaxUDPPayloadSize {
		t.Errorf("MaxUDPPayloadSize = %d, want default", p.MaxUDPPayloadSize)
	}
	if p.AckDelayExponent != defaultAckDelayExponent {
		t.Errorf("AckDelayExponent = %d, want default", p.AckDelayExponent)
	}
	if p.MaxAckDelay != defaultMaxAckDelay {
		t.Errorf("MaxAckDelay = %d, want default", p.MaxAckDelay)
	}
	if p.ActiveConnectionIDLimit != 4 {
		t.Errorf("ActiveConnectionIDLimit = %d, want 4 (overridden)", p.ActiveConnectionIDLimit)
	}
	if !bytes.Equal(p.InitialSourceConnectionID.Bytes(), []byte{0xca, 0xfe, 0xba, 0xbe}) {
		t.Errorf("InitialSourceConnectionID = %x, want cafebabe", p.InitialSourceConnectionID.Bytes())
	}
}

// TestScenarioS5MinAckDelayCrossCheck matches spec scenario S5: min_ack_delay
// (microseconds) must not exceed max_ack_delay (milliseconds) scaled to
// microseconds. Built with AppendVarint rather than a literal hex dump
// because QUIC_TP_ID_MIN_ACK_DELAY (0xFF04DE1B) exceeds the 30-bit range and
// its wire id therefore takes the 8-byte varint form, not the 4-byte form.
func TestScenarioS5MinAckDelayCrossCheck(t *testing.T) {
	buildTP := func(minAckDelayUs, maxAckDelayMs uint64) []byte {
		var buf []byte
		minPayload := AppendVarint(nil, minAckDelayUs)
		buf = AppendVarint(buf, tpIDMinAckDelay)
		buf = AppendVarint(buf, uint64(len(minPayload)))
		buf = append(buf, minPayload...)

		maxPayload := AppendVarint(nil, maxAckDelayMs)
		buf = AppendVarint(buf, tpIDMaxAckDelay)
		buf = AppendVarint(buf, uint64(len(maxPayload)))
		buf = append(buf, maxPayload...)
		return buf
	}

	var p TransportParams
	if !DecodeTransportParameters(false, buildTP(100, 25), &p) {
		t.Fatal("DecodeTransportParameters rejected a valid min/max ack-delay pair")
	}

	var p2 TransportParams
	if DecodeTransportParameters(false, buildTP(1000, 0), &p2) {
		t.Fatal("DecodeTransportParameters accepted min_ack_delay (1000us) exceeding max_ack_delay (0ms)")
	}
}

func TestTransportParametersTruncatedVarintRejected(t *testing.T) {
	// S2-style: a TP blob whose length field claims more bytes than follow.
	buf := []byte{0x04, 0x08, 0x01, 0x02} // id=4, length=8, only 2 bytes follow
	var p TransportParams
	if DecodeTransportParameters(false, buf, &p) {
		t.Fatal("DecodeTransportParameters accepted a truncated transport parameter")
	}
}

func TestCopyTransportParametersDuplicatesVersionInfo(t *testing.T) {
	src := &TransportParams{}
	src.VersionInfo = []byte{1, 2, 3, 4}
	src.Flags.VersionInfo = true

	var dst TransportParams
	if err := CopyTransportParameters(&dst, src); err != nil {
		t.Fatalf("CopyTransportParameters() error = %v", err)
	}
	if !bytes.Equal(dst.VersionInfo, src.VersionInfo) {
		t.Fatalf("VersionInfo = %x, want %x", dst.VersionInfo, src.VersionInfo)
	}

	dst.VersionInfo[0] = 0xff
	if src.VersionInfo[0] == 0xff {
		t.Fatal("CopyTransportParameters aliased VersionInfo instead of duplicating it")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	p := &TransportParams{}
	p.VersionInfo = []byte{1, 2, 3}
	p.Flags.VersionInfo = true

	Cleanup(p)
	Cleanup(p)

	if p.VersionInfo != nil || p.Flags.VersionInfo {
		t.Errorf("Cleanup left state behind: %+v", p)
	}
}

func TestPreferredAddressEncodeAsserts(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("EncodeTransportParameters did not panic on preferred_address")
		}
	}()
	p := &TransportParams{}
	p.Flags.PreferredAddress = true
	EncodeTransportParameters(true, p, nil, 0)
}
