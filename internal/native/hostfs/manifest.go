package hostfs

import (
	"fmt"
	"os"

	"github.com/danmuck/articgate/internal/native"
	"github.com/fxamacker/cbor/v2"
)

// Manifest is the identity data a backend reports for its process and
// system services.
type Manifest struct {
	TitleID      uint64            `cbor:"title_id"`
	ProductInfo  []byte            `cbor:"product_info"`
	Code         []byte            `cbor:"code"`
	ExHeader     []byte            `cbor:"exheader"`
	DeviceID     uint32            `cbor:"device_id"`
	ConfigBlocks map[uint32][]byte `cbor:"config_blocks"`
	WifiMAC      []byte            `cbor:"wifi_mac"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("hostfs: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("hostfs: CBOR decoder initialization failed: " + err.Error())
	}
}

// Validate checks the fixed-size fields.
func (m Manifest) Validate() error {
	if n := len(m.ProductInfo); n != 0 && n != native.ProductInfoSize {
		return fmt.Errorf("hostfs: product_info is %d bytes, want %d", n, native.ProductInfoSize)
	}
	if n := len(m.ExHeader); n != 0 && n != native.ExHeaderSize {
		return fmt.Errorf("hostfs: exheader is %d bytes, want %d", n, native.ExHeaderSize)
	}
	if n := len(m.WifiMAC); n != 0 && n != native.MACAddressSize {
		return fmt.Errorf("hostfs: wifi_mac is %d bytes, want %d", n, native.MACAddressSize)
	}
	return nil
}

func EncodeManifest(m Manifest) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(m)
}

func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := decMode.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("hostfs: decode manifest: %w", err)
	}
	return m, m.Validate()
}

// LoadManifest reads a manifest file. A missing file yields an empty manifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("hostfs: read manifest: %w", err)
	}
	return DecodeManifest(data)
}

func WriteManifest(path string, m Manifest) error {
	data, err := EncodeManifest(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
