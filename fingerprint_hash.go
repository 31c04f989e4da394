package clienthellod

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
)

func updateArr(h hash.Hash, arr []byte) {
	binary.Write(h, binary.BigEndian, uint32(len(arr)))
	h.Write(arr)
}

func updateU32(h hash.Hash, i uint32) {
	binary.Write(h, binary.BigEndian, i)
}

func updateU64(h hash.Hash, i uint64) {
	binary.Write(h, binary.BigEndian, i)
}

// hexUint64 renders a numeric fingerprint ID as an 8-byte big-endian hex
// string, matching the encoding (*ClientHello).FingerprintID uses for its
// own NID/NormNID fields.
func hexUint64(v uint64) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return hex.EncodeToString(b)
}
