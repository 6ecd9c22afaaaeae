// Package hostfs backs every native service with a directory on the host.
//
// Each archive id maps to a sub-tree of the root (sdmc/, nand/, romfs/ and so
// on). ASCII and UTF-16 paths resolve inside that tree and cannot escape it.
// Binary paths resolve to bin/<hex> except ExeFS section paths, which resolve
// to exefs/<section>. Identity data comes from the CBOR manifest system.cbor.
package hostfs

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danmuck/articgate/internal/native"
	"github.com/rs/zerolog/log"
)

// ManifestName is the identity manifest file under the root.
const ManifestName = "system.cbor"

var (
	ErrRootRequired = errors.New("hostfs: root directory required")
	ErrPathEscape   = errors.New("hostfs: path escapes archive")
)

// archiveDirs maps archive ids to their sub-tree.
var archiveDirs = map[native.ArchiveID]string{
	native.ArchiveRomFS:              "romfs",
	native.ArchiveSaveData:           "savedata",
	native.ArchiveExtData:            "extdata",
	native.ArchiveSharedExtData:      "extdata-shared",
	native.ArchiveSystemSaveData:     "sysdata",
	native.ArchiveSDMC:               "sdmc",
	native.ArchiveSaveDataAndContent: "content",
	native.ArchiveNANDCTRFS:          "nand",
}

// secureDir holds the secure-storage tree reached through PXI sessions.
const secureDir = "secure"

// Backend implements native.FS, Process, Loader, PXI, AM, Config and
// SharedConfig over one root directory.
type Backend struct {
	root     string
	manifest Manifest

	mu       sync.Mutex
	next     uint32
	files    map[uint32]*os.File
	dirs     map[uint32]*dirCursor
	archives map[uint64]string
}

type dirCursor struct {
	entries []native.DirectoryEntry
	pos     int
}

// Open loads the manifest under root and returns a backend.
func Open(root string) (*Backend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrRootRequired
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("hostfs: root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("hostfs: root %s is not a directory", abs)
	}
	m, err := LoadManifest(filepath.Join(abs, ManifestName))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("root", abs).Uint64("title_id", m.TitleID).Msg("hostfs.Open backend ready")
	return &Backend{
		root:     abs,
		manifest: m,
		next:     0x100,
		files:    make(map[uint32]*os.File),
		dirs:     make(map[uint32]*dirCursor),
		archives: make(map[uint64]string),
	}, nil
}

// Services wires the backend into every native service slot.
func (b *Backend) Services() native.Services {
	return native.Services{FS: b, Process: b, Loader: b, PXI: b, AM: b, Config: b, Shared: b}
}

func (b *Backend) Root() string {
	return b.root
}

// Close releases every handle still open on the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for h, f := range b.files {
		errs = append(errs, f.Close())
		delete(b.files, h)
	}
	clear(b.dirs)
	clear(b.archives)
	return errors.Join(errs...)
}

// handle must be called with mu held.
func (b *Backend) handle() uint32 {
	b.next++
	return b.next
}

// ArchiveDir returns the host directory an archive id and path resolve to.
func (b *Backend) ArchiveDir(archive native.ArchiveID, path native.Path) (string, error) {
	return archiveDir(b.root, archive, path)
}

func archiveDir(root string, archive native.ArchiveID, path native.Path) (string, error) {
	dir, ok := archiveDirs[archive]
	if !ok {
		return "", native.Fail("OpenArchive", native.ResultNotSupported)
	}
	base := filepath.Join(root, dir)
	switch path.Type {
	case native.PathEmpty:
		return base, nil
	case native.PathBinary:
		return filepath.Join(base, hex.EncodeToString(path.Data)), nil
	}
	return resolve(base, path)
}

// resolve joins a text path under base, rejecting escapes.
func resolve(base string, path native.Path) (string, error) {
	if path.Type == native.PathBinary {
		return filepath.Join(base, binaryName(path.Data)), nil
	}
	text, ok := path.Text()
	if !ok {
		return "", ErrPathEscape
	}
	clean := filepath.Clean("/" + filepath.FromSlash(text))
	full := filepath.Join(base, clean)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return full, nil
}

// binaryName names a binary file path. ExeFS section paths are a u32 2
// followed by a NUL-padded section name.
func binaryName(data []byte) string {
	if len(data) == 0xC && binary.LittleEndian.Uint32(data) == 2 {
		name := strings.TrimRight(string(data[4:]), "\x00")
		if name != "" && !strings.ContainsAny(name, "/\\.\x00") {
			return filepath.Join("exefs", name)
		}
	}
	return filepath.Join("bin", hex.EncodeToString(data))
}

func openFlags(flags uint32) int {
	mode := os.O_RDONLY
	if flags&native.OpenWrite != 0 {
		mode = os.O_RDWR
	}
	if flags&native.OpenCreate != 0 {
		mode |= os.O_CREATE
	}
	return mode
}

// nativeErr converts a host error into a native result.
func nativeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return native.Fail(op, native.ResultNotFound)
	case errors.Is(err, fs.ErrExist):
		return native.Fail(op, native.ResultAlreadyExists)
	case errors.Is(err, ErrPathEscape):
		return native.Fail(op, native.ResultNotFound)
	}
	var re *native.ResultError
	if errors.As(err, &re) {
		return native.Fail(op, re.Code)
	}
	log.Debug().Str("op", op).Err(err).Msg("hostfs.nativeErr host failure")
	return native.Fail(op, native.ResultInternal)
}
