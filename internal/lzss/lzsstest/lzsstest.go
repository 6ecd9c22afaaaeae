// Package lzsstest builds payload blobs for tests.
package lzsstest

import (
	"encoding/binary"

	"github.com/danmuck/articgate/internal/lzss"
)

// StoredFooter marks a blob with no compressed region: the output equals the input.
var StoredFooter = []byte{0x08, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}

// StoredBlob returns a blob of words*8 body bytes plus StoredFooter. When
// valid is true the body's last word is chosen so the decompressed output
// passes lzss.VerifyPayload.
func StoredBlob(words int, valid bool) []byte {
	if words < 1 {
		words = 1
	}
	body := make([]byte, words*8)
	for i := range body {
		body[i] = byte(i*7 + 3)
	}
	blob := append(body, StoredFooter...)
	if !valid {
		return blob
	}

	inv := inverse(lzss.ChecksumMultiplier)
	footer := binary.LittleEndian.Uint64(StoredFooter)
	prefix := lzss.Checksum(body[:len(body)-8])
	// ((prefix + w) * K + footer) * K == expected
	w := (lzss.ExpectedPayloadChecksum*inv-footer)*inv - prefix
	binary.LittleEndian.PutUint64(blob[len(body)-8:len(body)], w)
	return blob
}

// RepeatSegment is the back-reference ExpandingBlob uses by default: 18
// bytes copied from offset 2.
const RepeatSegment uint16 = 0xF000

// SegmentOffset is the position of the back-reference segment in an
// ExpandingBlob.
const SegmentOffset = 8

// ExpandingBlob returns a 22-byte blob that decompresses to an 8-byte head
// followed by "ZYX" repeated seven times. The compressed region holds three
// literals and one back-reference encoded by seg. When valid is true and
// the blob decompresses, the head word is chosen so the output passes
// lzss.VerifyPayload.
func ExpandingBlob(seg uint16, valid bool) []byte {
	blob := []byte("ARTCHEAD")
	blob = append(blob, byte(seg), byte(seg>>8), 'Z', 'Y', 'X', 0x10)
	footer := make([]byte, lzss.FooterLen)
	binary.LittleEndian.PutUint32(footer[0:4], 8<<24|14)
	binary.LittleEndian.PutUint32(footer[4:8], 7)
	blob = append(blob, footer...)
	if !valid {
		return blob
	}

	binary.LittleEndian.PutUint64(blob[0:8], 0)
	out, err := lzss.DecompressAlloc(blob)
	if err != nil {
		return blob
	}
	// The checksum is linear in each word: word 0 of m contributes w*K^m.
	m := len(out) / 8
	scale := uint64(1)
	inv := inverse(lzss.ChecksumMultiplier)
	for i := 0; i < m; i++ {
		scale *= inv
	}
	w := (lzss.ExpectedPayloadChecksum - lzss.Checksum(out)) * scale
	binary.LittleEndian.PutUint64(blob[0:8], w)
	return blob
}

// inverse returns the multiplicative inverse of odd k modulo 2^64.
func inverse(k uint64) uint64 {
	inv := k
	for i := 0; i < 6; i++ {
		inv *= 2 - k*inv
	}
	return inv
}
