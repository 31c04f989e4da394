package clienthellod

import "testing"

// buildClientHello assembles a minimal but complete ClientHello handshake
// message (4-byte header included) with the given SNI hostname, ALPN
// protocol list, and raw transport parameters payload.
func buildClientHello(t *testing.T, sni string, alpnProtocols []string, tpPayload []byte) []byte {
	t.Helper()

	var body []byte
	body = append(body, 0x03, 0x03) // client_version: TLS 1.2-looking
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00) // session_id: empty
	body = append(body, 0x00, 0x02, 0x13, 0x01)
	body = append(body, 0x01, 0x00) // compression methods: [null]

	var extensions []byte
	if sni != "" {
		var sniList []byte
		sniList = append(sniList, 0x00) // host_name
		sniList = append(sniList, byte(len(sni)>>8), byte(len(sni)))
		sniList = append(sniList, []byte(sni)...)
		var sniExt []byte
		sniExt = append(sniExt, byte(len(sniList)>>8), byte(len(sniList)))
		sniExt = append(sniExt, sniList...)
		extensions = append(extensions, 0x00, 0x00)
		extensions = append(extensions, byte(len(sniExt)>>8), byte(len(sniExt)))
		extensions = append(extensions, sniExt...)
	}

	if alpnProtocols != nil {
		var list []byte
		for _, p := range alpnProtocols {
			list = append(list, byte(len(p)))
			list = append(list, []byte(p)...)
		}
		var alpnExt []byte
		alpnExt = append(alpnExt, byte(len(list)>>8), byte(len(list)))
		alpnExt = append(alpnExt, list...)
		extensions = append(extensions, 0x00, 0x10)
		extensions = append(extensions, byte(len(alpnExt)>>8), byte(len(alpnExt)))
		extensions = append(extensions, alpnExt...)
	}

	if tpPayload != nil {
		extensions = append(extensions, 0x00, 0x39)
		extensions = append(extensions, byte(len(tpPayload)>>8), byte(len(tpPayload)))
		extensions = append(extensions, tpPayload...)
	}

	body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
	body = append(body, extensions...)

	msg := []byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	msg = append(msg, body...)
	return msg
}

func minimalTPPayload(t *testing.T) []byte {
	t.Helper()
	p := &TransportParams{}
	p.InitialMaxData = 1048576
	p.Flags.InitialMaxData = true
	return EncodeTransportParameters(false, p, nil, 0)
}

func TestReadInitialSuccess(t *testing.T) {
	buf := buildClientHello(t, "example.com", []string{"h2"}, minimalTPPayload(t))
	var info NewConnectionInfo
	st := ReadInitial(0x00000001, buf, &info)
	if st != StatusSuccess {
		t.Fatalf("ReadInitial() = %v, want Success", st)
	}
	if string(info.ServerName) != "example.com" {
		t.Errorf("ServerName = %q, want %q", info.ServerName, "example.com")
	}
	want := []byte{0x02, 'h', '2'}
	if string(info.ClientALPNList) != string(want) {
		t.Errorf("ClientALPNList = %x, want %x", info.ClientALPNList, want)
	}
	if !info.TransportParams.Flags.InitialMaxData || info.TransportParams.InitialMaxData != 1048576 {
		t.Errorf("TransportParams not decoded correctly: %+v", info.TransportParams)
	}
}

func TestReadInitialMissingALPNRejected(t *testing.T) {
	buf := buildClientHello(t, "example.com", nil, minimalTPPayload(t))
	var info NewConnectionInfo
	if st := ReadInitial(1, buf, &info); st != StatusInvalidParameter {
		t.Fatalf("ReadInitial() = %v, want InvalidParameter", st)
	}
}

func TestReadInitialMissingTPRejected(t *testing.T) {
	buf := buildClientHello(t, "example.com", []string{"h2"}, nil)
	var info NewConnectionInfo
	if st := ReadInitial(1, buf, &info); st != StatusInvalidParameter {
		t.Fatalf("ReadInitial() = %v, want InvalidParameter", st)
	}
}

func TestReadInitialNoSNIPermitted(t *testing.T) {
	buf := buildClientHello(t, "", []string{"h2"}, minimalTPPayload(t))
	var info NewConnectionInfo
	if st := ReadInitial(1, buf, &info); st != StatusSuccess {
		t.Fatalf("ReadInitial() = %v, want Success", st)
	}
	if info.ServerName != nil {
		t.Errorf("ServerName = %q, want nil", info.ServerName)
	}
}

func TestReadInitialTruncationNeverSucceeds(t *testing.T) {
	buf := buildClientHello(t, "example.com", []string{"h2"}, minimalTPPayload(t))
	for k := 1; k < len(buf); k++ {
		var info NewConnectionInfo
		st := ReadInitial(1, buf[:k], &info)
		if st == StatusSuccess {
			t.Errorf("prefix of length %d (of %d) returned Success", k, len(buf))
		}
	}
}

func TestReadInitialNotClientHelloRejected(t *testing.T) {
	// HandshakeType 0x02 (ServerHello) instead of ClientHello.
	buf := []byte{0x02, 0x00, 0x00, 0x01, 0x00}
	var info NewConnectionInfo
	if st := ReadInitial(1, buf, &info); st != StatusInvalidParameter {
		t.Fatalf("ReadInitial() = %v, want InvalidParameter", st)
	}
}

func TestReadInitialEmptyBufferPending(t *testing.T) {
	var info NewConnectionInfo
	if st := ReadInitial(1, nil, &info); st != StatusPending {
		t.Fatalf("ReadInitial(nil) = %v, want Pending", st)
	}
}

func TestReadClientRandom(t *testing.T) {
	buf := buildClientHello(t, "example.com", []string{"h2"}, minimalTPPayload(t))
	var secrets TlsSecrets
	if err := ReadClientRandom(buf, &secrets); err != nil {
		t.Fatalf("ReadClientRandom() error = %v", err)
	}
	if !secrets.IsSet.ClientRandom {
		t.Error("IsSet.ClientRandom not set")
	}
}

func TestReadClientRandomTooShort(t *testing.T) {
	var secrets TlsSecrets
	if err := ReadClientRandom([]byte{0x01, 0x00, 0x00, 0x01}, &secrets); err == nil {
		t.Fatal("ReadClientRandom succeeded on a too-short buffer")
	}
}

func TestSNISelectsFirstHostName(t *testing.T) {
	// [type=9 "x", type=0 "alpha", type=0 "beta"]
	var list []byte
	list = append(list, 9, 0x00, 0x01, 'x')
	list = append(list, 0x00, 0x00, 0x05, 'a', 'l', 'p', 'h', 'a')
	list = append(list, 0x00, 0x00, 0x04, 'b', 'e', 't', 'a')
	var payload []byte
	payload = append(payload, byte(len(list)>>8), byte(len(list)))
	payload = append(payload, list...)

	name, ok := readServerNameExtension(payload)
	if !ok {
		t.Fatal("readServerNameExtension failed")
	}
	if string(name) != "alpha" {
		t.Errorf("got %q, want %q", name, "alpha")
	}
}

func TestALPNPassthroughExactBytes(t *testing.T) {
	payload, ok := buildALPNPayload([]string{"h2", "http/1.1"})
	if !ok {
		t.Fatal("buildALPNPayload failed")
	}
	list, ok := readALPNExtension(payload)
	if !ok {
		t.Fatal("readALPNExtension failed")
	}
	want := append([]byte{0x02, 'h', '2'}, append([]byte{0x08}, []byte("http/1.1")...)...)
	if string(list) != string(want) {
		t.Errorf("got %x, want %x", list, want)
	}
}

func buildALPNPayload(protocols []string) ([]byte, bool) {
	var list []byte
	for _, p := range protocols {
		list = append(list, byte(len(p)))
		list = append(list, []byte(p)...)
	}
	var payload []byte
	payload = append(payload, byte(len(list)>>8), byte(len(list)))
	payload = append(payload, list...)
	return payload, true
}
