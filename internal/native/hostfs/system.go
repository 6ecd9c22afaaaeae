package hostfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/danmuck/articgate/internal/native"
)

func (b *Backend) TitleID() (uint64, error) {
	return b.manifest.TitleID, nil
}

func (b *Backend) ProductInfo() ([]byte, error) {
	if len(b.manifest.ProductInfo) == 0 {
		return nil, native.Fail("ProductInfo", native.ResultNotFound)
	}
	return append([]byte(nil), b.manifest.ProductInfo...), nil
}

func (b *Backend) CodeRegion() ([]byte, error) {
	return b.manifest.Code, nil
}

func (b *Backend) LastApplicationExHeader() ([]byte, error) {
	if len(b.manifest.ExHeader) == 0 {
		return make([]byte, native.ExHeaderSize), nil
	}
	return append([]byte(nil), b.manifest.ExHeader...), nil
}

func (b *Backend) DeviceID() (uint32, error) {
	return b.manifest.DeviceID, nil
}

func (b *Backend) ReadBlock(id uint32, dst []byte) error {
	block, ok := b.manifest.ConfigBlocks[id]
	if !ok {
		return native.Fail("ReadBlock", native.ResultNotFound)
	}
	if len(block) < len(dst) {
		return native.Fail("ReadBlock", native.ResultOutOfRange)
	}
	copy(dst, block)
	return nil
}

func (b *Backend) WifiMAC() [native.MACAddressSize]byte {
	var mac [native.MACAddressSize]byte
	copy(mac[:], b.manifest.WifiMAC)
	return mac
}

// OpenSession opens a secure-storage session over the secure/ tree. Every
// secure archive id resolves to that tree.
func (b *Backend) OpenSession() (native.SecureStorage, error) {
	return &secureSession{
		root:     filepath.Join(b.root, secureDir),
		archives: make(map[uint64]string),
		files:    make(map[uint64]*os.File),
	}, nil
}

type secureSession struct {
	root string

	mu       sync.Mutex
	next     uint64
	archives map[uint64]string
	files    map[uint64]*os.File
	closed   bool
}

func (s *secureSession) OpenArchive(archive native.ArchiveID, path native.Path) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, native.Fail("PXI.OpenArchive", native.ResultInvalidHandle)
	}
	s.next++
	s.archives[s.next] = s.root
	return s.next, nil
}

func (s *secureSession) OpenFile(archive uint64, path native.Path, flags, attrs uint32) (uint64, error) {
	s.mu.Lock()
	base, ok := s.archives[archive]
	s.mu.Unlock()
	if !ok {
		return 0, native.Fail("PXI.OpenFile", native.ResultInvalidHandle)
	}
	full, err := resolve(base, path)
	if err != nil {
		return 0, nativeErr("PXI.OpenFile", err)
	}
	f, err := os.Open(full)
	if err != nil {
		return 0, nativeErr("PXI.OpenFile", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.files[s.next] = f
	return s.next, nil
}

func (s *secureSession) FileSize(file uint64) (uint64, error) {
	f, err := s.file("PXI.FileSize", file)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, nativeErr("PXI.FileSize", err)
	}
	return uint64(info.Size()), nil
}

func (s *secureSession) ReadFile(file uint64, offset uint64, dst []byte) (int, error) {
	f, err := s.file("PXI.ReadFile", file)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(dst, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, nativeErr("PXI.ReadFile", err)
	}
	return n, nil
}

func (s *secureSession) CloseFile(file uint64) error {
	s.mu.Lock()
	f, ok := s.files[file]
	delete(s.files, file)
	s.mu.Unlock()
	if !ok {
		return native.Fail("PXI.CloseFile", native.ResultInvalidHandle)
	}
	return nativeErr("PXI.CloseFile", f.Close())
}

func (s *secureSession) CloseArchive(archive uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archives[archive]; !ok {
		return native.Fail("PXI.CloseArchive", native.ResultInvalidHandle)
	}
	delete(s.archives, archive)
	return nil
}

func (s *secureSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *secureSession) file(op string, h uint64) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[h]
	if !ok {
		return nil, native.Fail(op, native.ResultInvalidHandle)
	}
	return f, nil
}
