package gateway

import (
	"context"
	"encoding/binary"

	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/rs/zerolog/log"
)

func (s *Session) getTitleID(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	if !in.Finish() {
		return
	}
	tid, err := s.svc.Process.TitleID()
	if err != nil {
		log.Error().Str("session", s.ID).Err(err).Msg("gateway.getTitleID")
		out.FinishInternalError()
		return
	}
	if !reserveU64(out, 0, tid) {
		return
	}
	out.Finish(rpc.StatusOK)
}

func (s *Session) getProductInfo(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	if !in.Finish() {
		return
	}
	info, err := s.svc.Process.ProductInfo()
	if err == nil && len(info) != native.ProductInfoSize {
		err = native.Fail("ProductInfo", native.ResultInternal)
	}
	if err != nil {
		log.Error().Str("session", s.ID).Err(err).Msg("gateway.getProductInfo")
		out.FinishInternalError()
		return
	}
	b := out.Reserve(0, native.ProductInfoSize)
	if b == nil {
		return
	}
	copy(b.Data, info)
	out.Finish(rpc.StatusOK)
}

func (s *Session) getExheader(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	if !in.Finish() {
		return
	}
	snap := s.snapshot()
	b := out.Reserve(0, len(snap))
	if b == nil {
		return
	}
	copy(b.Data, snap)
	out.Finish(rpc.StatusOK)
}

func (s *Session) readCode(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	offset, _ := in.S32()
	size, _ := in.S32()
	if !in.Finish() {
		return
	}
	code, err := s.svc.Process.CodeRegion()
	if err != nil {
		log.Error().Str("session", s.ID).Err(err).Msg("gateway.readCode")
		out.FinishInternalError()
		return
	}
	if offset < 0 || size < 0 || int64(offset)+int64(size) > int64(len(code)) {
		log.Warn().Str("session", s.ID).Int32("offset", offset).Int32("size", size).Int("code_size", len(code)).Msg("gateway.readCode out of range")
		out.FinishInternalError()
		return
	}
	b := out.Reserve(0, int(size))
	if b == nil {
		return
	}
	copy(b.Data, code[offset:int(offset)+int(size)])
	out.Finish(rpc.StatusOK)
}

// exefsPath addresses one ExeFS section of the running title's content.
func exefsPath(section string) native.Path {
	data := make([]byte, 0xC)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	copy(data[4:], section)
	return native.Path{Type: native.PathBinary, Data: data}
}

func exefsReader(s *Session, section string) rpc.Handler {
	path := exefsPath(section)
	return rpc.HandlerFunc(func(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
		if !in.Finish() {
			return
		}
		fs := s.svc.FS
		fd, err := fs.OpenFileDirectly(native.ArchiveRomFS, native.EmptyPath(), path, native.OpenRead, 0)
		if err != nil {
			finishNative(out, err)
			return
		}
		defer fs.CloseFile(fd)

		size, err := fs.FileSize(fd)
		if err != nil {
			finishNative(out, err)
			return
		}
		b := reserveSized(out, 0, size)
		if b == nil {
			return
		}
		n, err := fs.ReadFile(fd, 0, b.Data)
		if err != nil {
			_ = out.Resize(b, 0)
			finishNative(out, err)
			return
		}
		_ = out.Resize(b, n)
		out.Finish(rpc.StatusOK)
	})
}
