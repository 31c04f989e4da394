package clienthellod

// QUIC Transport Parameter identifier registry (RFC 9000 Section 18.2, plus
// the vendor extensions msquic ships). Grounded on the #define table in
// original_source/src/core/crypto_tls.c (QUIC_TP_ID_*) and, for the subset
// it implements, on the teacher's ParseQUICTransportParameters
// (quic_transport_parameters.go) which pulls the same numeric ids from
// github.com/gaukas/godicttls.
const (
	tpIDOriginalDestinationConnectionID = 0x00
	tpIDIdleTimeout                     = 0x01
	tpIDStatelessResetToken             = 0x02
	tpIDMaxUDPPayloadSize               = 0x03
	tpIDInitialMaxData                  = 0x04
	tpIDInitialMaxStreamDataBidiLocal   = 0x05
	tpIDInitialMaxStreamDataBidiRemote  = 0x06
	tpIDInitialMaxStreamDataUni         = 0x07
	tpIDInitialMaxStreamsBidi           = 0x08
	tpIDInitialMaxStreamsUni            = 0x09
	tpIDAckDelayExponent                = 0x0a
	tpIDMaxAckDelay                     = 0x0b
	tpIDDisableActiveMigration          = 0x0c
	tpIDPreferredAddress                = 0x0d
	tpIDActiveConnectionIDLimit         = 0x0e
	tpIDInitialSourceConnectionID       = 0x0f
	tpIDRetrySourceConnectionID         = 0x10
	tpIDMaxDatagramFrameSize            = 0x20
	tpIDVersionInformation              = 0x11
	tpIDCIBIREncoding                   = 0x1000
	tpIDGreaseQuicBit                   = 0x2ab2
	tpIDEnableTimestamp                 = 0x7158
	tpIDDisable1RTTEncryption           = 0xbaad
	tpIDMinAckDelay                     = 0xff04de1b
	tpIDReliableResetEnabled            = 0x17f7586d2cb570

	maxConnectionIDLen = 20
	statelessResetTokenLen = 16

	defaultMaxUDPPayloadSize       = 65527
	defaultAckDelayExponent        = 3
	defaultMaxAckDelay             = 25
	defaultActiveConnectionIDLimit = 2
)

// isGreaseTransportParameterID reports whether id follows the reserved
// GREASE pattern (RFC 9000 Section 18.1): ids congruent to 27 mod 31 are
// never assigned and must be silently ignored on decode, never emitted by
// the encoder.
func isGreaseTransportParameterID(id uint64) bool {
	return id%31 == 27
}

// ConnectionIDParam is a fixed-capacity inline connection id, used for the
// three connection-id-valued transport parameters. It never allocates.
type ConnectionIDParam struct {
	Length uint8
	Data   [maxConnectionIDLen]byte
}

// Bytes returns the connection id's valid bytes.
func (c ConnectionIDParam) Bytes() []byte {
	return c.Data[:c.Length]
}

// TransportParamFlags marks which of TransportParams' fields were present
// on the wire (decode) or are to be emitted (encode), independent of each
// parameter's numeric id. An unset flag means the field's value is either
// the RFC-default (decode) or simply absent (encode).
type TransportParamFlags struct {
	OriginalDestinationConnectionID bool
	IdleTimeout                     bool
	StatelessResetToken             bool
	MaxUDPPayloadSize               bool
	InitialMaxData                  bool
	InitialMaxStreamDataBidiLocal   bool
	InitialMaxStreamDataBidiRemote  bool
	InitialMaxStreamDataUni         bool
	InitialMaxStreamsBidi           bool
	InitialMaxStreamsUni            bool
	AckDelayExponent                bool
	MaxAckDelay                     bool
	DisableActiveMigration          bool
	PreferredAddress                bool
	ActiveConnectionIDLimit         bool
	InitialSourceConnectionID       bool
	RetrySourceConnectionID         bool
	MaxDatagramFrameSize            bool
	VersionInfo                     bool
	CibirEncoding                   bool
	GreaseQuicBit                   bool
	EnableTimestamp                 bool
	DisableOneRTTEncryption         bool
	MinAckDelay                     bool
	ReliableResetEnabled            bool
}

// TransportParams is the decoded (or to-be-encoded) set of QUIC Transport
// Parameters for one endpoint of one connection. VersionInfo is the only
// field this struct exclusively owns; every connection id field is inline,
// fixed-capacity storage that never escapes to the heap.
type TransportParams struct {
	Flags TransportParamFlags

	OriginalDestinationConnectionID ConnectionIDParam
	IdleTimeout                     uint64
	StatelessResetToken             [statelessResetTokenLen]byte
	MaxUDPPayloadSize               uint64
	InitialMaxData                  uint64
	InitialMaxStreamDataBidiLocal   uint64
	InitialMaxStreamDataBidiRemote  uint64
	InitialMaxStreamDataUni         uint64
	InitialMaxStreamsBidi           uint64
	InitialMaxStreamsUni            uint64
	AckDelayExponent                uint64
	MaxAckDelay                     uint64
	ActiveConnectionIDLimit         uint64
	InitialSourceConnectionID       ConnectionIDParam
	RetrySourceConnectionID         ConnectionIDParam
	MaxDatagramFrameSize            uint64

	// VersionInfo is the raw version_negotiation_ext payload. Owned: Cleanup
	// must be called (directly, or via the next Decode) before the struct is
	// discarded or decoded into again.
	VersionInfo []byte

	CibirEncodingLength uint64
	CibirEncodingOffset uint64

	EnableTimestamp uint64 // 2-bit send/recv mask, values 0-3

	MinAckDelay uint64
}

// PrivateTransportParameter is a test-only hook: an arbitrary {id, length,
// buffer} triple appended verbatim to an encoder's output, used to exercise
// forward-compatibility and reserved-id handling. It is never produced by
// the decoder.
type PrivateTransportParameter struct {
	ID     uint64
	Length int
	Buffer []byte
}

func (tp *PrivateTransportParameter) payload() []byte {
	if tp == nil {
		return nil
	}
	return tp.Buffer[:tp.Length]
}

// Cleanup releases TransportParams' one owned allocation. It is idempotent
// and safe to call on a zero-value TransportParams.
func Cleanup(p *TransportParams) {
	p.VersionInfo = nil
	p.Flags.VersionInfo = false
}

// CopyTransportParameters copies src into dst, duplicating VersionInfo's
// backing storage so dst ends up exclusively owning an independent copy.
// dst's prior VersionInfo, if any, is released first.
func CopyTransportParameters(dst, src *TransportParams) error {
	Cleanup(dst)
	*dst = *src
	if src.Flags.VersionInfo && src.VersionInfo != nil {
		buf := make([]byte, len(src.VersionInfo))
		copy(buf, src.VersionInfo)
		dst.VersionInfo = buf
	}
	return nil
}
