package hostfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/testutil/testlog"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func openBackend(t *testing.T, m Manifest) (*Backend, string) {
	t.Helper()
	root := t.TempDir()
	if err := WriteManifest(filepath.Join(root, ManifestName), m); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	b, err := Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, root
}

func TestOpenRequiresDirectory(t *testing.T) {
	testlog.Start(t)

	if _, err := Open(""); !errors.Is(err, ErrRootRequired) {
		t.Fatalf("expected ErrRootRequired, got %v", err)
	}
	file := filepath.Join(t.TempDir(), "plain")
	writeFile(t, file, nil)
	if _, err := Open(file); err == nil {
		t.Fatalf("expected error for non-directory root")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	testlog.Start(t)

	m := Manifest{
		TitleID:      0x0004013000002C02,
		ProductInfo:  bytes.Repeat([]byte{1}, native.ProductInfoSize),
		DeviceID:     0xCAFE,
		ConfigBlocks: map[uint32][]byte{native.ConfigBlockConsoleID: {1, 2, 3, 4, 5, 6, 7, 8}},
		WifiMAC:      []byte{1, 2, 3, 4, 5, 6},
	}
	b, _ := openBackend(t, m)

	if id, _ := b.TitleID(); id != m.TitleID {
		t.Fatalf("title id: %#x", id)
	}
	if mac := b.WifiMAC(); mac != [6]byte{1, 2, 3, 4, 5, 6} {
		t.Fatalf("mac: %x", mac)
	}
	var block [8]byte
	if err := b.ReadBlock(native.ConfigBlockConsoleID, block[:]); err != nil || block[7] != 8 {
		t.Fatalf("read block: %v %x", err, block)
	}
	if err := b.ReadBlock(native.ConfigBlockRandom, block[:4]); native.Code(err) != native.ResultNotFound {
		t.Fatalf("expected not found for missing block, got %v", err)
	}
	if hdr, _ := b.LastApplicationExHeader(); len(hdr) != native.ExHeaderSize {
		t.Fatalf("default exheader size: %d", len(hdr))
	}
}

func TestManifestRejectsBadSizes(t *testing.T) {
	testlog.Start(t)

	if _, err := EncodeManifest(Manifest{WifiMAC: []byte{1, 2}}); err == nil {
		t.Fatalf("expected error for short mac")
	}
	if _, err := EncodeManifest(Manifest{ProductInfo: []byte{1}}); err == nil {
		t.Fatalf("expected error for short product info")
	}
}

func TestOpenFileDirectlyAndRead(t *testing.T) {
	testlog.Start(t)

	b, root := openBackend(t, Manifest{})
	writeFile(t, filepath.Join(root, "sdmc", "data", "a.bin"), []byte("hello world"))

	h, err := b.OpenFileDirectly(native.ArchiveSDMC, native.EmptyPath(), native.ASCIIPath("/data/a.bin"), native.OpenRead, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	size, err := b.FileSize(h)
	if err != nil || size != 11 {
		t.Fatalf("size: %d %v", size, err)
	}
	buf := make([]byte, 16)
	n, err := b.ReadFile(h, 6, buf)
	if err != nil || string(buf[:n]) != "world" {
		t.Fatalf("read: %q %v", buf[:n], err)
	}
	attrs, err := b.FileAttributes(h)
	if err != nil || attrs&native.AttrArchive == 0 || attrs&native.AttrDirectory != 0 {
		t.Fatalf("attrs: %#x %v", attrs, err)
	}
	if err := b.CloseFile(h); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.CloseFile(h); native.Code(err) != native.ResultInvalidHandle {
		t.Fatalf("expected invalid handle on double close, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	testlog.Start(t)

	b, _ := openBackend(t, Manifest{})
	_, err := b.OpenFileDirectly(native.ArchiveSDMC, native.EmptyPath(), native.ASCIIPath("/nope"), native.OpenRead, 0)
	if native.Code(err) != native.ResultNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPathsCannotEscapeArchive(t *testing.T) {
	testlog.Start(t)

	b, root := openBackend(t, Manifest{})
	writeFile(t, filepath.Join(root, "secret"), []byte("x"))

	h, err := b.OpenFileDirectly(native.ArchiveSDMC, native.EmptyPath(), native.ASCIIPath("/../secret"), native.OpenRead, 0)
	if err == nil {
		t.Fatalf("escaped archive with handle %#x", h)
	}
	if _, err := resolve(filepath.Join(root, "sdmc"), native.ASCIIPath("../../secret")); err != nil {
		t.Fatalf("cleaned relative path should stay inside: %v", err)
	}
}

func TestCreateFile(t *testing.T) {
	testlog.Start(t)

	b, root := openBackend(t, Manifest{})
	h, err := b.OpenFileDirectly(native.ArchiveSaveData, native.EmptyPath(), native.UTF16Path("/new/file.dat"), native.OpenRead|native.OpenWrite|native.OpenCreate, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = b.CloseFile(h)
	if _, err := os.Stat(filepath.Join(root, "savedata", "new", "file.dat")); err != nil {
		t.Fatalf("created file missing: %v", err)
	}
}

func TestExeFSBinaryPath(t *testing.T) {
	testlog.Start(t)

	b, root := openBackend(t, Manifest{})
	writeFile(t, filepath.Join(root, "romfs", "exefs", "icon"), []byte("ICON"))

	data := make([]byte, 0xC)
	data[0] = 2
	copy(data[4:], "icon")
	h, err := b.OpenFileDirectly(native.ArchiveRomFS, native.EmptyPath(), native.Path{Type: native.PathBinary, Data: data}, native.OpenRead, 0)
	if err != nil {
		t.Fatalf("open exefs icon: %v", err)
	}
	buf := make([]byte, 8)
	if n, _ := b.ReadFile(h, 0, buf); string(buf[:n]) != "ICON" {
		t.Fatalf("icon content: %q", buf[:n])
	}
}

func TestArchiveAndDirectory(t *testing.T) {
	testlog.Start(t)

	b, root := openBackend(t, Manifest{})
	writeFile(t, filepath.Join(root, "sdmc", "dir", "b.txt"), []byte("bb"))
	writeFile(t, filepath.Join(root, "sdmc", "dir", "a.txt"), []byte("a"))
	if err := os.MkdirAll(filepath.Join(root, "sdmc", "dir", "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	arc, err := b.OpenArchive(native.ArchiveSDMC, native.EmptyPath())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if arc>>32 != uint64(native.ArchiveSDMC) {
		t.Fatalf("archive handle does not carry id: %#x", arc)
	}
	dir, err := b.OpenDirectory(arc, native.ASCIIPath("/dir"))
	if err != nil {
		t.Fatalf("open dir: %v", err)
	}
	page := make([]native.DirectoryEntry, 2)
	n, err := b.ReadDirectory(dir, page)
	if err != nil || n != 2 || page[0].Name != "a.txt" || page[1].FileSize != 2 {
		t.Fatalf("first page: n=%d err=%v entries=%+v", n, err, page[:n])
	}
	if page[0].ShortName != "A" || page[0].ShortExt != "TXT" {
		t.Fatalf("short name: %q.%q", page[0].ShortName, page[0].ShortExt)
	}
	n, _ = b.ReadDirectory(dir, page)
	if n != 1 || page[0].Attributes&native.AttrDirectory == 0 {
		t.Fatalf("second page: n=%d %+v", n, page[:n])
	}
	if n, _ = b.ReadDirectory(dir, page); n != 0 {
		t.Fatalf("expected exhausted listing, got %d", n)
	}

	f, err := b.OpenFile(arc, native.ASCIIPath("/dir/a.txt"), native.OpenRead, 0)
	if err != nil {
		t.Fatalf("open file in archive: %v", err)
	}
	_ = b.CloseFile(f)
	if err := b.CloseDirectory(dir); err != nil {
		t.Fatalf("close dir: %v", err)
	}
	if err := b.CloseArchive(arc); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	if _, err := b.OpenFile(arc, native.ASCIIPath("/dir/a.txt"), native.OpenRead, 0); native.Code(err) != native.ResultInvalidHandle {
		t.Fatalf("expected invalid handle after archive close, got %v", err)
	}
}

func TestUnsupportedArchive(t *testing.T) {
	testlog.Start(t)

	b, _ := openBackend(t, Manifest{})
	if _, err := b.OpenArchive(native.ArchiveID(0x1234), native.EmptyPath()); native.Code(err) != native.ResultNotSupported {
		t.Fatalf("expected not supported, got %v", err)
	}
}

func TestSecureStorage(t *testing.T) {
	testlog.Start(t)

	b, root := openBackend(t, Manifest{})
	writeFile(t, filepath.Join(root, "secure", "rw", "sys", "SecureInfo_A"), []byte("secure"))

	pxi, err := b.OpenSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer pxi.Close()
	arc, err := pxi.OpenArchive(native.ArchiveNANDCTRFS, native.EmptyPath())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := pxi.OpenFile(arc, native.ASCIIPath("/rw/sys/SecureInfo_B"), native.OpenRead, 0); native.Code(err) != native.ResultNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	f, err := pxi.OpenFile(arc, native.ASCIIPath("/rw/sys/SecureInfo_A"), native.OpenRead, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	size, _ := pxi.FileSize(f)
	buf := make([]byte, size)
	if n, err := pxi.ReadFile(f, 0, buf); err != nil || string(buf[:n]) != "secure" {
		t.Fatalf("read: %q %v", buf[:n], err)
	}
	if err := pxi.CloseFile(f); err != nil {
		t.Fatalf("close file: %v", err)
	}
	if err := pxi.CloseArchive(arc); err != nil {
		t.Fatalf("close archive: %v", err)
	}
}

func TestShortName(t *testing.T) {
	testlog.Start(t)

	cases := map[string][2]string{
		"a.txt":             {"A", "TXT"},
		"longfilename.jpeg": {"LONGFI~1", "JPE"},
		"noext":             {"NOEXT", ""},
		".hidden":           {"HIDDEN", ""},
	}
	for in, want := range cases {
		base, ext := shortName(in)
		if base != want[0] || ext != want[1] {
			t.Fatalf("shortName(%q) = %q.%q, want %q.%q", in, base, ext, want[0], want[1])
		}
	}
}
