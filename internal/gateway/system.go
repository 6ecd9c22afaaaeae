package gateway

import (
	"context"
	"fmt"

	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/rs/zerolog/log"
)

// InitialSetupVersion is the marker reported to callers probing for the
// initial-setup build.
const InitialSetupVersion uint32 = 0

// System file selectors.
const (
	SystemFileSecureInfo int8 = iota
	SystemFileFriendCodeSeed
	SystemFileMovable
	SystemFileOTP
	SystemFileConsoleID
	SystemFileMAC
)

// secureFiles lists the secure-storage names tried in order per selector.
var secureFiles = [...][2]string{
	SystemFileSecureInfo:     {"/rw/sys/SecureInfo_A", "/rw/sys/SecureInfo_B"},
	SystemFileFriendCodeSeed: {"/rw/sys/LocalFriendCodeSeed_A", "/rw/sys/LocalFriendCodeSeed_B"},
	SystemFileMovable:        {"/private/movable.sed", "/private/movable.sedB"},
}

func otpBackupPath(deviceID uint32) string {
	return fmt.Sprintf("/luma/backups/%08X/otp.bin", deviceID)
}

func (s *Session) isInitialSetup(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	if !in.Finish() {
		return
	}
	if !reserveU32(out, 0, InitialSetupVersion) {
		return
	}
	out.Finish(rpc.StatusOK)
}

func (s *Session) getSystemFile(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	selector, _ := in.S8()
	if !in.Finish() {
		return
	}

	switch selector {
	case SystemFileSecureInfo, SystemFileFriendCodeSeed, SystemFileMovable:
		s.readSecureFile(secureFiles[selector], out)
	case SystemFileOTP:
		s.readOTPBackup(out)
	case SystemFileConsoleID:
		s.readConsoleID(out)
	case SystemFileMAC:
		mac := s.svc.Shared.WifiMAC()
		b := out.Reserve(0, native.MACAddressSize)
		if b == nil {
			return
		}
		copy(b.Data, mac[:])
		out.Finish(rpc.StatusOK)
	default:
		out.Finish(rpc.StatusGeneric)
	}
}

func (s *Session) readSecureFile(names [2]string, out *rpc.Results) {
	pxi, err := s.svc.PXI.OpenSession()
	if err != nil {
		finishNative(out, err)
		return
	}
	defer pxi.Close()

	archive, err := pxi.OpenArchive(native.ArchiveNANDCTRFS, native.EmptyPath())
	if err != nil {
		finishNative(out, err)
		return
	}
	defer pxi.CloseArchive(archive)

	file, err := pxi.OpenFile(archive, native.ASCIIPath(names[0]), native.OpenRead, 0)
	if err != nil {
		file, err = pxi.OpenFile(archive, native.ASCIIPath(names[1]), native.OpenRead, 0)
		if err != nil {
			finishNative(out, err)
			return
		}
	}
	defer pxi.CloseFile(file)

	size, err := pxi.FileSize(file)
	if err != nil {
		finishNative(out, err)
		return
	}
	b := reserveSized(out, 0, size)
	if b == nil {
		return
	}
	n, err := pxi.ReadFile(file, 0, b.Data)
	finishRead(out, b, n, err)
}

func (s *Session) readOTPBackup(out *rpc.Results) {
	deviceID, err := s.svc.AM.DeviceID()
	if err != nil {
		finishNative(out, err)
		return
	}
	fs := s.svc.FS
	path := otpBackupPath(deviceID)
	fd, err := fs.OpenFileDirectly(native.ArchiveSDMC, native.EmptyPath(), native.ASCIIPath(path), native.OpenRead, 0)
	if err != nil {
		log.Error().Str("session", s.ID).Str("path", path).Err(err).Msg("gateway.readOTPBackup missing OTP backup on SD card")
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
	finishRead(out, b, n, err)
}

// finishRead seals a whole-file read: a short read wins over the host
// result, and the buffer keeps only the bytes actually read.
func finishRead(out *rpc.Results, b *rpc.Buffer, n int, err error) {
	if n < 0 {
		n = 0
	}
	if n != b.Cap() {
		if n < b.Cap() {
			_ = out.Resize(b, n)
		}
		out.Finish(rpc.StatusShortRead)
		return
	}
	finishNative(out, err)
}

func (s *Session) readConsoleID(out *rpc.Results) {
	var consoleID [8]byte
	var random [4]byte
	err := s.svc.Config.ReadBlock(native.ConfigBlockConsoleID, consoleID[:])
	if err == nil {
		err = s.svc.Config.ReadBlock(native.ConfigBlockRandom, random[:])
	}
	if err != nil {
		finishNative(out, err)
		return
	}
	b := out.Reserve(0, 0xC)
	if b == nil {
		return
	}
	copy(b.Data[0:8], consoleID[:])
	copy(b.Data[8:12], random[:])
	out.Finish(rpc.StatusOK)
}

// System payload location: the NIM title's content in NAND.
var (
	nimArchivePath = native.BinaryPath(0x00002C02, 0x00040130, uint32(native.MediaNAND), 0)
	nimFilePath    = native.BinaryPath(0, 0, 2, 0x646F632E, 0x00000065)
)

func (s *Session) getNIM(_ context.Context, in *rpc.Cursor, out *rpc.Results) {
	if !in.Finish() {
		return
	}

	blob, status := s.readNIMContent()
	if status != rpc.StatusOK {
		out.Finish(status)
		return
	}
	if blob == nil {
		return
	}
	if len(s.cfg.NIMHeader) == 0 {
		log.Error().Str("session", s.ID).Msg("gateway.getNIM header blob not configured")
		out.FinishInternalError()
		return
	}

	header := out.Reserve(0, len(s.cfg.NIMHeader))
	if header == nil {
		return
	}
	copy(header.Data, s.cfg.NIMHeader)

	payload, ok := s.expandNIM(blob, out)
	if !ok {
		return
	}
	if !verifyNIM(payload.Bytes()) {
		log.Error().Str("session", s.ID).Msg("gateway.getNIM invalid checksum, system data is not the expected version")
		observability.RecordChecksumFailure()
		rejectNIM(out, payload)
		return
	}
	out.Finish(rpc.StatusOK)
}

// readNIMContent loads the stored payload. A nil blob with StatusOK means
// the payload cannot fit the result budget and the call must be aborted.
func (s *Session) readNIMContent() ([]byte, rpc.Status) {
	fs := s.svc.FS
	fd, err := fs.OpenFileDirectly(native.ArchiveSaveDataAndContent, nimArchivePath, nimFilePath, native.OpenRead, 0)
	if err != nil {
		return nil, rpc.Status(native.Code(err))
	}
	defer fs.CloseFile(fd)

	size, err := fs.FileSize(fd)
	if err != nil {
		return nil, rpc.Status(native.Code(err))
	}
	if limit := s.cfg.Limits.MaxResultBytes; limit > 0 && size > uint64(limit) {
		log.Error().Str("session", s.ID).Uint64("size", size).Msg("gateway.getNIM stored payload exceeds result budget")
		return nil, rpc.StatusOK
	}
	blob := make([]byte, size)
	n, err := fs.ReadFile(fd, 0, blob)
	if n != len(blob) {
		return nil, rpc.StatusShortRead
	}
	if err != nil {
		return nil, rpc.Status(native.Code(err))
	}
	return blob, rpc.StatusOK
}
