package clienthellod

// NewConnectionInfo is the structured result of inspecting a peer's first
// flight: the offered SNI, the offered ALPN list, and the peer's decoded
// QUIC Transport Parameters. ServerName and ClientALPNList are borrowed
// slices into the caller-owned ClientHello buffer passed to ReadInitial;
// neither this struct nor any slice taken from it may outlive that buffer.
type NewConnectionInfo struct {
	// ServerName is the first host_name SNI entry seen, or nil if the
	// ClientHello carried no server_name extension.
	ServerName []byte

	// ClientALPNList is the raw ALPN ProtocolNameList payload: each entry's
	// 1-byte length prefix followed by its bytes, concatenated, excluding
	// the outer u16 list length. Always non-nil after a Success return.
	ClientALPNList []byte

	// TransportParams holds the peer's decoded QUIC Transport Parameters,
	// populated by the extension dispatcher when it locates the TP
	// extension.
	TransportParams TransportParams
}

// TlsSecretsFlags marks which fields of TlsSecrets have been written.
type TlsSecretsFlags struct {
	ClientRandom bool
}

// TlsSecrets holds key-log material extracted alongside ingest parsing. It
// is populated by ReadClientRandom, independently of ReadInitial, since not
// every caller needs a key-log tap.
type TlsSecrets struct {
	ClientRandom [32]byte
	IsSet        TlsSecretsFlags
}
