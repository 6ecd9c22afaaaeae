package lzss

import "encoding/binary"

const (
	ChecksumMultiplier uint64 = 0x6500000065

	// ExpectedPayloadChecksum is the checksum of the only payload version the
	// gateway accepts.
	ExpectedPayloadChecksum uint64 = 0x50F9D326AB2239E9
)

// Checksum folds data as little-endian 64-bit words; a trailing partial
// word is ignored.
func Checksum(data []byte) uint64 {
	var sum uint64
	words := len(data) &^ 7
	for i := 0; i < words; i += 8 {
		sum = (sum + binary.LittleEndian.Uint64(data[i:i+8])) * ChecksumMultiplier
	}
	return sum
}

func VerifyPayload(data []byte) bool {
	return Checksum(data) == ExpectedPayloadChecksum
}
