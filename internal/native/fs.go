package native

import (
	"encoding/binary"
	"unicode/utf16"
)

type ArchiveID uint32

const (
	ArchiveRomFS              ArchiveID = 0x00000003
	ArchiveSaveData           ArchiveID = 0x00000004
	ArchiveExtData            ArchiveID = 0x00000006
	ArchiveSharedExtData      ArchiveID = 0x00000007
	ArchiveSystemSaveData     ArchiveID = 0x00000008
	ArchiveSDMC               ArchiveID = 0x00000009
	ArchiveSaveDataAndContent ArchiveID = 0x2345678A
	ArchiveNANDCTRFS          ArchiveID = 0x567890AB
)

type MediaType uint32

const (
	MediaNAND     MediaType = 0
	MediaSD       MediaType = 1
	MediaGameCard MediaType = 2
)

const (
	OpenRead   uint32 = 1 << 0
	OpenWrite  uint32 = 1 << 1
	OpenCreate uint32 = 1 << 2
)

const (
	AttrDirectory uint32 = 1 << 0
	AttrHidden    uint32 = 1 << 8
	AttrArchive   uint32 = 1 << 16
	AttrReadOnly  uint32 = 1 << 24
)

// FS is the user filesystem service. File and directory handles are 32-bit;
// archive handles are 64-bit.
type FS interface {
	OpenFileDirectly(archive ArchiveID, archivePath, filePath Path, flags, attrs uint32) (uint32, error)
	OpenArchive(archive ArchiveID, path Path) (uint64, error)
	CloseArchive(archive uint64) error
	OpenFile(archive uint64, path Path, flags, attrs uint32) (uint32, error)
	OpenDirectory(archive uint64, path Path) (uint32, error)
	CloseFile(file uint32) error
	CloseDirectory(dir uint32) error
	FileSize(file uint32) (uint64, error)
	FileAttributes(file uint32) (uint32, error)
	// ReadFile fills dst from offset and returns the bytes read.
	ReadFile(file uint32, offset uint64, dst []byte) (int, error)
	// ReadDirectory fills up to len(dst) entries and returns the count.
	ReadDirectory(dir uint32, dst []DirectoryEntry) (int, error)
}

const (
	DirectoryEntrySize = 0x228
	DirectoryNameUnits = 0x106
)

// DirectoryEntry is one directory listing record.
type DirectoryEntry struct {
	Name       string
	ShortName  string
	ShortExt   string
	Valid      bool
	Attributes uint32
	FileSize   uint64
}

// MarshalTo writes the fixed 0x228-byte record into dst.
func (e DirectoryEntry) MarshalTo(dst []byte) {
	_ = dst[DirectoryEntrySize-1]
	clear(dst[:DirectoryEntrySize])
	units := utf16.Encode([]rune(e.Name))
	if len(units) > DirectoryNameUnits-1 {
		units = units[:DirectoryNameUnits-1]
	}
	for i, u := range units {
		binary.LittleEndian.PutUint16(dst[2*i:], u)
	}
	copy(dst[0x20C:0x215], e.ShortName)
	copy(dst[0x216:0x219], e.ShortExt)
	if e.Valid {
		dst[0x21A] = 1
	}
	binary.LittleEndian.PutUint32(dst[0x21C:], e.Attributes)
	binary.LittleEndian.PutUint64(dst[0x220:], e.FileSize)
}

// UnmarshalDirectoryEntry decodes one fixed-size record.
func UnmarshalDirectoryEntry(src []byte) DirectoryEntry {
	_ = src[DirectoryEntrySize-1]
	units := make([]uint16, 0, DirectoryNameUnits)
	for i := 0; i < DirectoryNameUnits; i++ {
		u := binary.LittleEndian.Uint16(src[2*i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return DirectoryEntry{
		Name:       string(utf16.Decode(units)),
		ShortName:  cString(src[0x20C:0x216]),
		ShortExt:   cString(src[0x216:0x21A]),
		Valid:      src[0x21A] != 0,
		Attributes: binary.LittleEndian.Uint32(src[0x21C:]),
		FileSize:   binary.LittleEndian.Uint64(src[0x220:]),
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
