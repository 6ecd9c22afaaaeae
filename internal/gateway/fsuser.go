package gateway

import (
	"context"

	"github.com/danmuck/articgate/internal/handles"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/rs/zerolog/log"
)

func (s *Session) openFileDirectly(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	archiveID, _ := in.S32()
	archivePath, _ := pathParam(in)
	filePath, _ := pathParam(in)
	flags, _ := in.S32()
	attrs, _ := in.S32()
	if !in.Finish() {
		return
	}

	fd, err := s.svc.FS.OpenFileDirectly(native.ArchiveID(archiveID), archivePath, filePath, uint32(flags), uint32(attrs))
	if err != nil {
		finishNative(out, err)
		return
	}
	if !reserveU64(out, 0, uint64(fd)) {
		_ = s.svc.FS.CloseFile(fd)
		return
	}
	s.handles.Register(uint64(fd), handles.KindFile)
	log.Debug().Str("session", s.ID).Uint32("handle", fd).Str("path", filePath.String()).Msg("gateway.openFileDirectly")
	out.Finish(rpc.StatusOK)
}

func (s *Session) openArchive(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	archiveID, _ := in.S32()
	archivePath, _ := pathParam(in)
	if !in.Finish() {
		return
	}

	archive, err := s.svc.FS.OpenArchive(native.ArchiveID(archiveID), archivePath)
	if err != nil {
		finishNative(out, err)
		return
	}
	if !reserveU64(out, 0, archive) {
		_ = s.svc.FS.CloseArchive(archive)
		return
	}
	s.handles.Register(archive, handles.KindArchive)
	out.Finish(rpc.StatusOK)
}

func (s *Session) closeArchive(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	archive, _ := in.S64()
	if !in.Finish() {
		return
	}
	err := s.svc.FS.CloseArchive(uint64(archive))
	s.handles.Unregister(uint64(archive))
	finishNative(out, err)
}

func (s *Session) openFile(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	archive, _ := in.S64()
	filePath, _ := pathParam(in)
	flags, _ := in.S32()
	attrs, _ := in.S32()
	if !in.Finish() {
		return
	}

	fs := s.svc.FS
	fd, err := fs.OpenFile(uint64(archive), filePath, uint32(flags), uint32(attrs))
	if err != nil {
		finishNative(out, err)
		return
	}
	if !reserveU64(out, 0, uint64(fd)) {
		_ = fs.CloseFile(fd)
		return
	}
	// Callers always ask for the size next, so it rides along when available.
	if size, err := fs.FileSize(fd); err == nil {
		if !reserveU64(out, 1, size) {
			_ = fs.CloseFile(fd)
			return
		}
	}
	s.handles.Register(uint64(fd), handles.KindFile)
	out.Finish(rpc.StatusOK)
}

func (s *Session) openDirectory(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	archive, _ := in.S64()
	dirPath, _ := pathParam(in)
	if !in.Finish() {
		return
	}

	dir, err := s.svc.FS.OpenDirectory(uint64(archive), dirPath)
	if err != nil {
		finishNative(out, err)
		return
	}
	if !reserveU64(out, 0, uint64(dir)) {
		_ = s.svc.FS.CloseDirectory(dir)
		return
	}
	s.handles.Register(uint64(dir), handles.KindDirectory)
	out.Finish(rpc.StatusOK)
}

func (s *Session) fileClose(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	fd, _ := in.S32()
	if !in.Finish() {
		return
	}
	err := s.svc.FS.CloseFile(uint32(fd))
	s.handles.Unregister(uint64(uint32(fd)))
	finishNative(out, err)
}

func (s *Session) dirClose(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	dir, _ := in.S32()
	if !in.Finish() {
		return
	}
	err := s.svc.FS.CloseDirectory(uint32(dir))
	s.handles.Unregister(uint64(uint32(dir)))
	finishNative(out, err)
}

func (s *Session) fileGetSize(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	fd, _ := in.S32()
	if !in.Finish() {
		return
	}
	size, err := s.svc.FS.FileSize(uint32(fd))
	if err != nil {
		finishNative(out, err)
		return
	}
	if !reserveU64(out, 0, size) {
		return
	}
	out.Finish(rpc.StatusOK)
}

func (s *Session) fileGetAttributes(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	fd, _ := in.S32()
	if !in.Finish() {
		return
	}
	attrs, err := s.svc.FS.FileAttributes(uint32(fd))
	if err != nil {
		finishNative(out, err)
		return
	}
	if !reserveU32(out, 0, attrs) {
		return
	}
	out.Finish(rpc.StatusOK)
}

func (s *Session) fileRead(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	fd, _ := in.S32()
	offset, _ := in.S64()
	size, _ := in.S32()
	if !in.Finish() {
		return
	}
	if offset < 0 || size < 0 {
		in.Fail(ErrNegativeParam)
		return
	}

	log.Debug().Str("session", s.ID).Int32("handle", fd).Int64("offset", offset).Int32("size", size).Msg("gateway.fileRead")
	b := out.Reserve(0, int(size))
	if b == nil {
		return
	}
	n, err := s.svc.FS.ReadFile(uint32(fd), uint64(offset), b.Data)
	if err != nil {
		_ = out.Resize(b, 0)
		finishNative(out, err)
		return
	}
	_ = out.Resize(b, n)
	out.Finish(rpc.StatusOK)
}

func (s *Session) dirRead(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	dir, _ := in.S32()
	count, _ := in.S32()
	if !in.Finish() {
		return
	}

	if count < 0 {
		in.Fail(ErrNegativeParam)
		return
	}
	b := reserveSized(out, 0, uint64(count)*native.DirectoryEntrySize)
	if b == nil {
		return
	}
	entries := make([]native.DirectoryEntry, count)
	n, err := s.svc.FS.ReadDirectory(uint32(dir), entries)
	if err != nil {
		_ = out.Resize(b, 0)
		finishNative(out, err)
		return
	}
	if n > len(entries) {
		n = len(entries)
	}
	for i := 0; i < n; i++ {
		entries[i].MarshalTo(b.Data[i*native.DirectoryEntrySize:])
	}
	_ = out.Resize(b, n*native.DirectoryEntrySize)
	out.Finish(rpc.StatusOK)
}
