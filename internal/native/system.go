package native

const (
	ProductInfoSize = 0x14
	ExHeaderSize    = 0x800
	MACAddressSize  = 6
)

// Config block ids read by the gateway.
const (
	ConfigBlockConsoleID uint32 = 0x00090001
	ConfigBlockRandom    uint32 = 0x00090002
)

// Process exposes the host process the gateway runs in.
type Process interface {
	TitleID() (uint64, error)
	ProductInfo() ([]byte, error)
	// CodeRegion returns a read-only view of the process code segment.
	CodeRegion() ([]byte, error)
}

// Loader reports the program info of the most recently launched application.
type Loader interface {
	LastApplicationExHeader() ([]byte, error)
}

// PXI opens sessions to the secure-storage filesystem.
type PXI interface {
	OpenSession() (SecureStorage, error)
}

// SecureStorage is one secure-storage session. Closing the session does not
// close archives or files opened through it.
type SecureStorage interface {
	OpenArchive(archive ArchiveID, path Path) (uint64, error)
	OpenFile(archive uint64, path Path, flags, attrs uint32) (uint64, error)
	FileSize(file uint64) (uint64, error)
	ReadFile(file uint64, offset uint64, dst []byte) (int, error)
	CloseFile(file uint64) error
	CloseArchive(archive uint64) error
	Close() error
}

// AM is the application manager service.
type AM interface {
	DeviceID() (uint32, error)
}

// Config reads system configuration blocks.
type Config interface {
	ReadBlock(id uint32, dst []byte) error
}

// SharedConfig is the read-only shared configuration page.
type SharedConfig interface {
	WifiMAC() [MACAddressSize]byte
}
