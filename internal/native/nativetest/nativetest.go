// Package nativetest provides an in-memory host for gateway tests.
package nativetest

import (
	"fmt"
	"sync"

	"github.com/danmuck/articgate/internal/native"
)

// File is one in-memory file. ReadLimit caps the bytes a single read
// returns when positive.
type File struct {
	Data       []byte
	ReadLimit  int
	Attributes uint32
}

// Fake implements every native service over in-memory state. Set Errors[op]
// to make the named operation fail.
type Fake struct {
	mu sync.Mutex

	Files   map[string]*File
	Dirs    map[string][]native.DirectoryEntry
	Secure  map[string]*File
	Errors  map[string]error
	Calls   map[string]int
	Closed  map[string][]uint64
	Blocks  map[uint32][]byte
	Title   uint64
	Product []byte
	Code    []byte
	ExHdr   []byte
	Device  uint32
	MAC     [native.MACAddressSize]byte

	next     uint32
	files    map[uint32]*File
	dirs     map[uint32][]native.DirectoryEntry
	dirPos   map[uint32]int
	archives map[uint64]archiveRef
}

type archiveRef struct {
	id   native.ArchiveID
	path native.Path
}

func New() *Fake {
	return &Fake{
		Files:    make(map[string]*File),
		Dirs:     make(map[string][]native.DirectoryEntry),
		Secure:   make(map[string]*File),
		Errors:   make(map[string]error),
		Calls:    make(map[string]int),
		Closed:   make(map[string][]uint64),
		Blocks:   make(map[uint32][]byte),
		Product:  make([]byte, native.ProductInfoSize),
		ExHdr:    make([]byte, native.ExHeaderSize),
		next:     0x100,
		files:    make(map[uint32]*File),
		dirs:     make(map[uint32][]native.DirectoryEntry),
		dirPos:   make(map[uint32]int),
		archives: make(map[uint64]archiveRef),
	}
}

// Key addresses a file or directory by archive, archive path and path.
func Key(archive native.ArchiveID, archivePath, path native.Path) string {
	return fmt.Sprintf("%08X|%s|%s", uint32(archive), archivePath, path)
}

func (f *Fake) Services() native.Services {
	return native.Services{FS: f, Process: f, Loader: f, PXI: f, AM: f, Config: f, Shared: f}
}

// AddFile stores data under archive and path and returns the entry for tweaks.
func (f *Fake) AddFile(archive native.ArchiveID, archivePath, path native.Path, data []byte) *File {
	file := &File{Data: data}
	f.Files[Key(archive, archivePath, path)] = file
	return file
}

func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// TotalCalls counts every recorded native call.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		n += c
	}
	return n
}

// IsOpen reports whether a file or directory handle is still open.
func (f *Fake) IsOpen(h uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, file := f.files[h]
	_, dir := f.dirs[h]
	return file || dir
}

func (f *Fake) enter(op string) error {
	f.Calls[op]++
	return f.Errors[op]
}

func (f *Fake) handle() uint32 {
	f.next++
	return f.next
}

func (f *Fake) OpenFileDirectly(archive native.ArchiveID, archivePath, filePath native.Path, _, _ uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("OpenFileDirectly"); err != nil {
		return 0, err
	}
	file, ok := f.Files[Key(archive, archivePath, filePath)]
	if !ok {
		return 0, native.Fail("OpenFileDirectly", native.ResultNotFound)
	}
	h := f.handle()
	f.files[h] = file
	return h, nil
}

func (f *Fake) OpenArchive(archive native.ArchiveID, path native.Path) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("OpenArchive"); err != nil {
		return 0, err
	}
	h := uint64(f.handle()) | 1<<32
	f.archives[h] = archiveRef{id: archive, path: path}
	return h, nil
}

func (f *Fake) CloseArchive(archive uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CloseArchive"); err != nil {
		return err
	}
	if _, ok := f.archives[archive]; !ok {
		return native.Fail("CloseArchive", native.ResultInvalidHandle)
	}
	delete(f.archives, archive)
	f.Closed["archive"] = append(f.Closed["archive"], archive)
	return nil
}

func (f *Fake) OpenFile(archive uint64, path native.Path, _, _ uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("OpenFile"); err != nil {
		return 0, err
	}
	ref, ok := f.archives[archive]
	if !ok {
		return 0, native.Fail("OpenFile", native.ResultInvalidHandle)
	}
	file, ok := f.Files[Key(ref.id, ref.path, path)]
	if !ok {
		return 0, native.Fail("OpenFile", native.ResultNotFound)
	}
	h := f.handle()
	f.files[h] = file
	return h, nil
}

func (f *Fake) OpenDirectory(archive uint64, path native.Path) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("OpenDirectory"); err != nil {
		return 0, err
	}
	ref, ok := f.archives[archive]
	if !ok {
		return 0, native.Fail("OpenDirectory", native.ResultInvalidHandle)
	}
	entries, ok := f.Dirs[Key(ref.id, ref.path, path)]
	if !ok {
		return 0, native.Fail("OpenDirectory", native.ResultNotFound)
	}
	h := f.handle()
	f.dirs[h] = entries
	f.dirPos[h] = 0
	return h, nil
}

func (f *Fake) CloseFile(file uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CloseFile"); err != nil {
		return err
	}
	if _, ok := f.files[file]; !ok {
		return native.Fail("CloseFile", native.ResultInvalidHandle)
	}
	delete(f.files, file)
	f.Closed["file"] = append(f.Closed["file"], uint64(file))
	return nil
}

func (f *Fake) CloseDirectory(dir uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CloseDirectory"); err != nil {
		return err
	}
	if _, ok := f.dirs[dir]; !ok {
		return native.Fail("CloseDirectory", native.ResultInvalidHandle)
	}
	delete(f.dirs, dir)
	delete(f.dirPos, dir)
	f.Closed["directory"] = append(f.Closed["directory"], uint64(dir))
	return nil
}

func (f *Fake) FileSize(file uint32) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FileSize"); err != nil {
		return 0, err
	}
	fd, ok := f.files[file]
	if !ok {
		return 0, native.Fail("FileSize", native.ResultInvalidHandle)
	}
	return uint64(len(fd.Data)), nil
}

func (f *Fake) FileAttributes(file uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FileAttributes"); err != nil {
		return 0, err
	}
	fd, ok := f.files[file]
	if !ok {
		return 0, native.Fail("FileAttributes", native.ResultInvalidHandle)
	}
	return fd.Attributes, nil
}

func (f *Fake) ReadFile(file uint32, offset uint64, dst []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadFile"); err != nil {
		return 0, err
	}
	fd, ok := f.files[file]
	if !ok {
		return 0, native.Fail("ReadFile", native.ResultInvalidHandle)
	}
	return readAt(fd, offset, dst), nil
}

func (f *Fake) ReadDirectory(dir uint32, dst []native.DirectoryEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadDirectory"); err != nil {
		return 0, err
	}
	entries, ok := f.dirs[dir]
	if !ok {
		return 0, native.Fail("ReadDirectory", native.ResultInvalidHandle)
	}
	n := copy(dst, entries[f.dirPos[dir]:])
	f.dirPos[dir] += n
	return n, nil
}

func readAt(fd *File, offset uint64, dst []byte) int {
	if offset >= uint64(len(fd.Data)) {
		return 0
	}
	want := dst
	if fd.ReadLimit > 0 && len(want) > fd.ReadLimit {
		want = want[:fd.ReadLimit]
	}
	return copy(want, fd.Data[offset:])
}

func (f *Fake) TitleID() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TitleID"); err != nil {
		return 0, err
	}
	return f.Title, nil
}

func (f *Fake) ProductInfo() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ProductInfo"); err != nil {
		return nil, err
	}
	return append([]byte(nil), f.Product...), nil
}

func (f *Fake) CodeRegion() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CodeRegion"); err != nil {
		return nil, err
	}
	return f.Code, nil
}

func (f *Fake) LastApplicationExHeader() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("LastApplicationExHeader"); err != nil {
		return nil, err
	}
	return append([]byte(nil), f.ExHdr...), nil
}

func (f *Fake) DeviceID() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeviceID"); err != nil {
		return 0, err
	}
	return f.Device, nil
}

func (f *Fake) ReadBlock(id uint32, dst []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadBlock"); err != nil {
		return err
	}
	block, ok := f.Blocks[id]
	if !ok || len(block) != len(dst) {
		return native.Fail("ReadBlock", native.ResultNotFound)
	}
	copy(dst, block)
	return nil
}

func (f *Fake) WifiMAC() [native.MACAddressSize]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["WifiMAC"]++
	return f.MAC
}

// OpenSession opens a secure-storage session over Secure, keyed by ASCII path.
func (f *Fake) OpenSession() (native.SecureStorage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PXI.OpenSession"); err != nil {
		return nil, err
	}
	return &secureSession{fake: f, files: make(map[uint64]*File)}, nil
}

type secureSession struct {
	fake  *Fake
	next  uint64
	files map[uint64]*File
}

func (s *secureSession) OpenArchive(archive native.ArchiveID, _ native.Path) (uint64, error) {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if err := s.fake.enter("PXI.OpenArchive"); err != nil {
		return 0, err
	}
	if archive != native.ArchiveNANDCTRFS {
		return 0, native.Fail("PXI.OpenArchive", native.ResultNotSupported)
	}
	return 1, nil
}

func (s *secureSession) OpenFile(_ uint64, path native.Path, _, _ uint32) (uint64, error) {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if err := s.fake.enter("PXI.OpenFile"); err != nil {
		return 0, err
	}
	name, _ := path.Text()
	file, ok := s.fake.Secure[name]
	if !ok {
		return 0, native.Fail("PXI.OpenFile", native.ResultNotFound)
	}
	s.next++
	s.files[s.next] = file
	return s.next, nil
}

func (s *secureSession) FileSize(file uint64) (uint64, error) {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if err := s.fake.enter("PXI.FileSize"); err != nil {
		return 0, err
	}
	fd, ok := s.files[file]
	if !ok {
		return 0, native.Fail("PXI.FileSize", native.ResultInvalidHandle)
	}
	return uint64(len(fd.Data)), nil
}

func (s *secureSession) ReadFile(file uint64, offset uint64, dst []byte) (int, error) {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if err := s.fake.enter("PXI.ReadFile"); err != nil {
		return 0, err
	}
	fd, ok := s.files[file]
	if !ok {
		return 0, native.Fail("PXI.ReadFile", native.ResultInvalidHandle)
	}
	return readAt(fd, offset, dst), nil
}

func (s *secureSession) CloseFile(file uint64) error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.fake.Calls["PXI.CloseFile"]++
	delete(s.files, file)
	return nil
}

func (s *secureSession) CloseArchive(uint64) error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.fake.Calls["PXI.CloseArchive"]++
	return nil
}

func (s *secureSession) Close() error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.fake.Calls["PXI.Close"]++
	return nil
}
