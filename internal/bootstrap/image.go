// Package bootstrap installs the gateway plugin image and arms the plugin
// loader to launch it.
package bootstrap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// DefaultPluginPath is where the loader expects the plugin on the SD card.
const DefaultPluginPath = "/3ds/AzaharArticSetup/AzaharArticSetup.3gx"

// Magic opens every plugin image; the u32 version follows it.
const Magic = "3GX$0002"

// HeaderLen covers the magic and version.
const HeaderLen = len(Magic) + 4

const DigestSize = 32

var (
	ErrBadMagic       = errors.New("bootstrap: not a plugin image")
	ErrDigestMismatch = errors.New("bootstrap: image digest mismatch")
	ErrShortPackage   = errors.New("bootstrap: packaged image truncated")
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic("bootstrap: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("bootstrap: zstd decoder initialization failed: " + err.Error())
	}
}

// SystemVersion packs a major.minor.revision triple the way the loader and
// plugin headers do.
func SystemVersion(major, minor, revision uint8) uint32 {
	return uint32(major)<<24 | uint32(minor)<<16 | uint32(revision)<<8
}

func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>24, (v>>16)&0xFF, (v>>8)&0xFF)
}

// ImageVersion returns the header version of a raw plugin image.
func ImageVersion(raw []byte) (uint32, error) {
	if len(raw) < HeaderLen || !bytes.Equal(raw[:len(Magic)], []byte(Magic)) {
		return 0, ErrBadMagic
	}
	return binary.LittleEndian.Uint32(raw[len(Magic):]), nil
}

// Package is a compressed plugin image and the BLAKE3 digest of its raw
// bytes. On disk it is the digest followed by the zstd stream.
type Package struct {
	Digest     [DigestSize]byte
	Compressed []byte
}

func Pack(raw []byte) (Package, error) {
	if _, err := ImageVersion(raw); err != nil {
		return Package{}, err
	}
	return Package{
		Digest:     blake3.Sum256(raw),
		Compressed: zstdEncoder.EncodeAll(raw, nil),
	}, nil
}

// Unpack decompresses the image and verifies its digest.
func (p Package) Unpack() ([]byte, error) {
	raw, err := zstdDecoder.DecodeAll(p.Compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: zstd decompress: %w", err)
	}
	if blake3.Sum256(raw) != p.Digest {
		return nil, ErrDigestMismatch
	}
	return raw, nil
}

func (p Package) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, DigestSize+len(p.Compressed))
	out = append(out, p.Digest[:]...)
	return append(out, p.Compressed...), nil
}

func (p *Package) UnmarshalBinary(data []byte) error {
	if len(data) <= DigestSize {
		return ErrShortPackage
	}
	copy(p.Digest[:], data[:DigestSize])
	p.Compressed = append([]byte(nil), data[DigestSize:]...)
	return nil
}

func ReadPackage(path string) (Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Package{}, err
	}
	var p Package
	if err := p.UnmarshalBinary(data); err != nil {
		return Package{}, err
	}
	return p, nil
}

func WritePackage(path string, p Package) error {
	data, _ := p.MarshalBinary()
	return os.WriteFile(path, data, 0o644)
}

// NeedsUpdate reports whether the plugin at path is missing, is not a plugin
// image, or carries a version other than want.
func NeedsUpdate(path string, want uint32) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	var header [HeaderLen]byte
	n, _ := io.ReadFull(f, header[:])
	got, err := ImageVersion(header[:n])
	if err != nil {
		return true, nil
	}
	return got != want, nil
}

// Materialize writes the packaged image to path when the file there is stale.
// It reports whether it wrote.
func Materialize(path string, p Package) (bool, error) {
	raw, err := p.Unpack()
	if err != nil {
		return false, err
	}
	want, err := ImageVersion(raw)
	if err != nil {
		return false, err
	}
	stale, err := NeedsUpdate(path, want)
	if err != nil || !stale {
		return false, err
	}

	log.Info().Str("path", path).Str("version", FormatVersion(want)).Msg("bootstrap.Materialize updating plugin file")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("bootstrap: create plugin directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return false, fmt.Errorf("bootstrap: write plugin: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("bootstrap: write plugin: %w", err)
	}
	return true, nil
}
