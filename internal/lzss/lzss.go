// Package lzss expands the tail-anchored LZSS payloads stored by the system
// and checks the payload checksum.
//
// A compressed blob ends with an 8-byte footer of two little-endian words.
// The first packs the end margin (bits 24..31) and the size of the compressed
// region (bits 0..23); the second is the number of bytes decompression adds.
// Everything before the compressed region is stored verbatim, so decompression
// copies the blob to the front of the output and expands the tail backwards.
package lzss

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const FooterLen = 8

var (
	ErrCorruptFooter = errors.New("lzss: corrupt footer")
	ErrOutOfBounds   = errors.New("lzss: access out of bounds")
)

// Footer is the decoded blob trailer.
type Footer struct {
	EndMargin  int
	RegionSize int
	SizeDelta  uint32
}

func ReadFooter(blob []byte) (Footer, error) {
	n := len(blob)
	if n < FooterLen {
		return Footer{}, fmt.Errorf("%w: blob is %d bytes", ErrCorruptFooter, n)
	}
	w0 := binary.LittleEndian.Uint32(blob[n-8 : n-4])
	f := Footer{
		EndMargin:  int((w0 >> 24) & 0xFF),
		RegionSize: int(w0 & 0xFFFFFF),
		SizeDelta:  binary.LittleEndian.Uint32(blob[n-4:]),
	}
	if f.EndMargin > n || f.RegionSize > n {
		return Footer{}, fmt.Errorf("%w: margin=%d region=%d blob=%d", ErrCorruptFooter, f.EndMargin, f.RegionSize, n)
	}
	return f, nil
}

// DecompressedSize returns the output size encoded in the blob footer.
func DecompressedSize(blob []byte) (int, error) {
	f, err := ReadFooter(blob)
	if err != nil {
		return 0, err
	}
	size := uint64(f.SizeDelta) + uint64(len(blob))
	if size > uint64(maxInt) {
		return 0, fmt.Errorf("%w: decompressed size %d", ErrCorruptFooter, size)
	}
	return int(size), nil
}

const maxInt = int(^uint(0) >> 1)

// Decompress expands blob into dst. dst must be at least len(blob) bytes;
// callers size it with DecompressedSize. On error the contents of dst are
// unspecified and must be discarded.
func Decompress(blob, dst []byte) error {
	f, err := ReadFooter(blob)
	if err != nil {
		return err
	}
	n := len(blob)
	if len(dst) < n {
		return fmt.Errorf("%w: output %d smaller than input %d", ErrOutOfBounds, len(dst), n)
	}

	clear(dst)
	copy(dst, blob)

	index := n - f.EndMargin
	stop := n - f.RegionSize
	out := len(dst)

	for index > stop {
		index--
		control := blob[index]

		for i := 0; i < 8; i++ {
			if index <= stop || index == 0 || out == 0 {
				break
			}

			if control&0x80 != 0 {
				if index < 2 {
					return fmt.Errorf("%w: back-reference header at %d", ErrOutOfBounds, index)
				}
				index -= 2
				seg := int(blob[index]) | int(blob[index+1])<<8
				size := ((seg >> 12) & 0xF) + 3
				offset := (seg & 0x0FFF) + 2
				if out < size {
					return fmt.Errorf("%w: back-reference of %d at output %d", ErrOutOfBounds, size, out)
				}
				for j := 0; j < size; j++ {
					src := out + offset
					if src >= len(dst) {
						return fmt.Errorf("%w: back-reference source %d", ErrOutOfBounds, src)
					}
					out--
					dst[out] = dst[src]
				}
			} else {
				out--
				index--
				dst[out] = blob[index]
			}

			control <<= 1
		}
	}
	return nil
}

// DecompressAlloc sizes an output buffer from the footer and expands blob into it.
func DecompressAlloc(blob []byte) ([]byte, error) {
	size, err := DecompressedSize(blob)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, size)
	if err := Decompress(blob, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
