package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

const PathHeaderLen = 8

var ErrMalformedPath = errors.New("native: malformed path blob")

type PathType uint32

const (
	PathInvalid PathType = 0
	PathEmpty   PathType = 1
	PathBinary  PathType = 2
	PathASCII   PathType = 3
	PathUTF16   PathType = 4
)

func (t PathType) String() string {
	switch t {
	case PathEmpty:
		return "empty"
	case PathBinary:
		return "binary"
	case PathASCII:
		return "ascii"
	case PathUTF16:
		return "utf16"
	default:
		return "invalid"
	}
}

// Path is a typed filesystem path as the host filesystem service takes it.
type Path struct {
	Type PathType
	Data []byte
}

// ParsePath decodes a wire path blob: type u32 LE, size u32 LE, then size
// bytes of data. The returned data aliases blob.
func ParsePath(blob []byte) (Path, error) {
	if len(blob) < PathHeaderLen {
		return Path{}, fmt.Errorf("%w: %d bytes", ErrMalformedPath, len(blob))
	}
	typ := binary.LittleEndian.Uint32(blob[0:4])
	size := binary.LittleEndian.Uint32(blob[4:8])
	if uint64(size) != uint64(len(blob)-PathHeaderLen) {
		return Path{}, fmt.Errorf("%w: size %d with %d data bytes", ErrMalformedPath, size, len(blob)-PathHeaderLen)
	}
	return Path{Type: PathType(typ), Data: blob[PathHeaderLen:]}, nil
}

func (p Path) Encode() []byte {
	out := make([]byte, PathHeaderLen+len(p.Data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(p.Type))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(p.Data)))
	copy(out[PathHeaderLen:], p.Data)
	return out
}

func EmptyPath() Path {
	return Path{Type: PathEmpty, Data: []byte{0}}
}

// ASCIIPath builds a NUL-terminated ASCII path.
func ASCIIPath(s string) Path {
	data := make([]byte, len(s)+1)
	copy(data, s)
	return Path{Type: PathASCII, Data: data}
}

// UTF16Path builds a NUL-terminated UTF-16LE path.
func UTF16Path(s string) Path {
	units := utf16.Encode([]rune(s))
	data := make([]byte, 2*(len(units)+1))
	for i, u := range units {
		binary.LittleEndian.PutUint16(data[2*i:], u)
	}
	return Path{Type: PathUTF16, Data: data}
}

// BinaryPath packs little-endian words.
func BinaryPath(words ...uint32) Path {
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[4*i:], w)
	}
	return Path{Type: PathBinary, Data: data}
}

// Text returns the path as a string for ASCII and UTF-16 paths.
func (p Path) Text() (string, bool) {
	switch p.Type {
	case PathASCII:
		return strings.TrimRight(string(p.Data), "\x00"), true
	case PathUTF16:
		units := make([]uint16, 0, len(p.Data)/2)
		for i := 0; i+1 < len(p.Data); i += 2 {
			u := binary.LittleEndian.Uint16(p.Data[i:])
			if u == 0 {
				break
			}
			units = append(units, u)
		}
		return string(utf16.Decode(units)), true
	case PathEmpty:
		return "", true
	default:
		return "", false
	}
}

// Word returns the little-endian word at index i of a binary path.
func (p Path) Word(i int) (uint32, bool) {
	if p.Type != PathBinary || i < 0 || 4*i+4 > len(p.Data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(p.Data[4*i:]), true
}

func (p Path) String() string {
	if s, ok := p.Text(); ok {
		return p.Type.String() + ":" + s
	}
	return fmt.Sprintf("%s:%x", p.Type, p.Data)
}
