package clienthellod_test

import (
	"bytes"
	"testing"

	. "github.com/packetloop/quichs"
)

// TODO: update test data to the latest and move test data to separate files (in binary format)

var (
	quicHeaderTruth_Chrome125_PKN1 = &QUICHeader{
		Version:             []byte{0x00, 0x00, 0x00, 0x01},
		DCIDLength:          8,
		SCIDLength:          0,
		InitialPacketNumber: 1,

		TokenLength: 0,
	}
	quicHeaderTruth_Chrome125_PKN2 = &QUICHeader{
		Version:             []byte{0x00, 0x00, 0x00, 0x01},
		DCIDLength:          8,
		SCIDLength:          0,
		InitialPacketNumber: 2,

		TokenLength: 0,
	}

	quicHeaderTruth_Firefox126 = &QUICHeader{
		Version:             []byte{0x00, 0x00, 0x00, 0x01},
		DCIDLength:          8,
		SCIDLength:          3,
		InitialPacketNumber: 0,

		TokenLength: 0,
	}
)

func testQUICHeaderEqualsTruth(t *testing.T, header, truth *QUICHeader) {
	if !bytes.Equal(header.Version, truth.Version) {
		t.Errorf("header.Version = %x, want %x", header.Version, truth.Version)
	}

	if header.DCIDLength != truth.DCIDLength {
		t.Errorf("header.DCIDLength = %d, want %d", header.DCIDLength, truth.DCIDLength)
	}

	if header.SCIDLength != truth.SCIDLength {
		t.Errorf("header.SCIDLength = %d, want %d", header.SCIDLength, truth.SCIDLength)
	}

	if header.InitialPacketNumber != truth.InitialPacketNumber {
		t.Errorf("header.InitialPacketNumber = %d, want %d", header.InitialPacketNumber, truth.InitialPacketNumber)
	}

	if header.TokenLength != truth.TokenLength {
		t.Errorf("header.TokenLength = %d, want %d", header.TokenLength, truth.TokenLength)
	}
}
