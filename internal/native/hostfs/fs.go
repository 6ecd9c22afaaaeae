package hostfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/articgate/internal/native"
)

func (b *Backend) OpenFileDirectly(archive native.ArchiveID, archivePath, filePath native.Path, flags, attrs uint32) (uint32, error) {
	base, err := archiveDir(b.root, archive, archivePath)
	if err != nil {
		return 0, nativeErr("OpenFileDirectly", err)
	}
	return b.openFile("OpenFileDirectly", base, filePath, flags)
}

func (b *Backend) OpenArchive(archive native.ArchiveID, path native.Path) (uint64, error) {
	dir, err := archiveDir(b.root, archive, path)
	if err != nil {
		return 0, nativeErr("OpenArchive", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return 0, nativeErr("OpenArchive", err)
	}
	if !info.IsDir() {
		return 0, native.Fail("OpenArchive", native.ResultNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h := uint64(b.handle()) | uint64(archive)<<32
	b.archives[h] = dir
	return h, nil
}

func (b *Backend) CloseArchive(archive uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.archives[archive]; !ok {
		return native.Fail("CloseArchive", native.ResultInvalidHandle)
	}
	delete(b.archives, archive)
	return nil
}

func (b *Backend) OpenFile(archive uint64, path native.Path, flags, attrs uint32) (uint32, error) {
	base, err := b.archive("OpenFile", archive)
	if err != nil {
		return 0, err
	}
	return b.openFile("OpenFile", base, path, flags)
}

func (b *Backend) openFile(op, base string, path native.Path, flags uint32) (uint32, error) {
	full, err := resolve(base, path)
	if err != nil {
		return 0, nativeErr(op, err)
	}
	if flags&native.OpenCreate != 0 {
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return 0, nativeErr(op, err)
		}
	}
	f, err := os.OpenFile(full, openFlags(flags), 0o644)
	if err != nil {
		return 0, nativeErr(op, err)
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		_ = f.Close()
		return 0, native.Fail(op, native.ResultNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.handle()
	b.files[h] = f
	return h, nil
}

func (b *Backend) OpenDirectory(archive uint64, path native.Path) (uint32, error) {
	base, err := b.archive("OpenDirectory", archive)
	if err != nil {
		return 0, err
	}
	full, err := resolve(base, path)
	if err != nil {
		return 0, nativeErr("OpenDirectory", err)
	}
	listing, err := os.ReadDir(full)
	if err != nil {
		return 0, nativeErr("OpenDirectory", err)
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Name() < listing[j].Name() })

	entries := make([]native.DirectoryEntry, 0, len(listing))
	for _, de := range listing {
		entry, err := directoryEntry(filepath.Join(full, de.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.handle()
	b.dirs[h] = &dirCursor{entries: entries}
	return h, nil
}

func (b *Backend) CloseFile(file uint32) error {
	b.mu.Lock()
	f, ok := b.files[file]
	delete(b.files, file)
	b.mu.Unlock()
	if !ok {
		return native.Fail("CloseFile", native.ResultInvalidHandle)
	}
	return nativeErr("CloseFile", f.Close())
}

func (b *Backend) CloseDirectory(dir uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dirs[dir]; !ok {
		return native.Fail("CloseDirectory", native.ResultInvalidHandle)
	}
	delete(b.dirs, dir)
	return nil
}

func (b *Backend) FileSize(file uint32) (uint64, error) {
	f, err := b.file("FileSize", file)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, nativeErr("FileSize", err)
	}
	return uint64(info.Size()), nil
}

func (b *Backend) FileAttributes(file uint32) (uint32, error) {
	f, err := b.file("FileAttributes", file)
	if err != nil {
		return 0, err
	}
	attrs, err := attributes(f.Name())
	if err != nil {
		return 0, nativeErr("FileAttributes", err)
	}
	return attrs, nil
}

func (b *Backend) ReadFile(file uint32, offset uint64, dst []byte) (int, error) {
	f, err := b.file("ReadFile", file)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(dst, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, nativeErr("ReadFile", err)
	}
	return n, nil
}

func (b *Backend) ReadDirectory(dir uint32, dst []native.DirectoryEntry) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.dirs[dir]
	if !ok {
		return 0, native.Fail("ReadDirectory", native.ResultInvalidHandle)
	}
	n := copy(dst, cur.entries[cur.pos:])
	cur.pos += n
	return n, nil
}

func (b *Backend) archive(op string, h uint64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir, ok := b.archives[h]
	if !ok {
		return "", native.Fail(op, native.ResultInvalidHandle)
	}
	return dir, nil
}

func (b *Backend) file(op string, h uint32) (*os.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[h]
	if !ok {
		return nil, native.Fail(op, native.ResultInvalidHandle)
	}
	return f, nil
}

func directoryEntry(full string) (native.DirectoryEntry, error) {
	info, err := os.Stat(full)
	if err != nil {
		return native.DirectoryEntry{}, err
	}
	attrs, err := attributes(full)
	if err != nil {
		return native.DirectoryEntry{}, err
	}
	name := info.Name()
	short, ext := shortName(name)
	entry := native.DirectoryEntry{
		Name:       name,
		ShortName:  short,
		ShortExt:   ext,
		Valid:      true,
		Attributes: attrs,
	}
	if !info.IsDir() {
		entry.FileSize = uint64(info.Size())
	}
	return entry, nil
}

// shortName derives the 8.3 name: upper-cased, truncated base and extension.
func shortName(name string) (string, string) {
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i+1:]
	}
	base = strings.ToUpper(strings.ReplaceAll(base, ".", ""))
	ext = strings.ToUpper(ext)
	if len(base) > 8 {
		base = base[:6] + "~1"
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return base, ext
}
