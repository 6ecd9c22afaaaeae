package gateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/articgate/internal/handles"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/native/nativetest"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/danmuck/articgate/internal/testutil/testlog"
)

var testNIMHeader = []byte("NIM-EXHEADER-BLOB")

func startSession(t *testing.T, fake *nativetest.Fake) *Session {
	t.Helper()
	s, err := NewSession(fake.Services(), Config{Limits: rpc.DefaultLimits(), NIMHeader: testNIMHeader})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func call(t *testing.T, s *Session, method string, params *rpc.Params) rpc.Response {
	t.Helper()
	resp, err := s.Dispatch(context.Background(), rpc.Request{Method: method, Params: params.Encode()})
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return resp
}

func handleOf(t *testing.T, resp rpc.Response) uint64 {
	t.Helper()
	if len(resp.Buffers) == 0 || len(resp.Buffers[0]) != 8 {
		t.Fatalf("expected 8-byte handle buffer, got %+v", resp.Buffers)
	}
	return binary.LittleEndian.Uint64(resp.Buffers[0])
}

func openDirectParams(archive native.ArchiveID, archivePath, path native.Path) *rpc.Params {
	return rpc.NewParams().
		S32(int32(archive)).
		Buffer(archivePath.Encode()).
		Buffer(path.Encode()).
		S32(int32(native.OpenRead)).
		S32(0)
}

func TestStartCapturesExheader(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	fake.ExHdr[0] = 0xEE
	s := startSession(t, fake)
	fake.ExHdr[0] = 0x00

	resp := call(t, s, MethodGetExheader, nil)
	if resp.Status != rpc.StatusOK || len(resp.Buffers[0]) != native.ExHeaderSize || resp.Buffers[0][0] != 0xEE {
		t.Fatalf("unexpected exheader response: status=%v", resp.Status)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if fake.CallCount("LastApplicationExHeader") != 1 {
		t.Fatalf("exheader captured more than once")
	}
}

func TestStartFailureIsFatal(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	fake.Errors["LastApplicationExHeader"] = native.Fail("LastApplicationExHeader", native.ResultNotSupported)
	s, err := NewSession(fake.Services(), DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrStartup) {
		t.Fatalf("expected ErrStartup, got %v", err)
	}
	_, err = s.Dispatch(context.Background(), rpc.Request{Method: MethodGetTitleID})
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestOpenFileDirectlyRegistersFile(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	path := native.ASCIIPath("/3ds/data.bin")
	fake.AddFile(native.ArchiveSDMC, native.EmptyPath(), path, []byte("payload"))
	s := startSession(t, fake)

	resp := call(t, s, MethodOpenFileDirectly, openDirectParams(native.ArchiveSDMC, native.EmptyPath(), path))
	if resp.Status != rpc.StatusOK || len(resp.Buffers) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	h := handleOf(t, resp)
	kind, ok := s.handles.Lookup(h)
	if !ok || kind != handles.KindFile {
		t.Fatalf("handle %d not tracked as file: %v %v", h, kind, ok)
	}
}

func TestOpenFileDirectlyPassesNativeStatus(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	s := startSession(t, fake)

	resp := call(t, s, MethodOpenFileDirectly, openDirectParams(native.ArchiveSDMC, native.EmptyPath(), native.ASCIIPath("/missing")))
	if resp.Status != rpc.Status(native.ResultNotFound) || len(resp.Buffers) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(s.Handles()) != 0 {
		t.Fatalf("failed open left a handle")
	}
}

func TestMalformedPathIsInternalError(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	s := startSession(t, fake)
	before := fake.TotalCalls()

	params := rpc.NewParams().
		S32(int32(native.ArchiveSDMC)).
		Buffer(native.EmptyPath().Encode()).
		Buffer([]byte{3, 0, 0, 0, 9, 0, 0, 0, 'x'}).
		S32(1).
		S32(0)
	resp := call(t, s, MethodOpenFileDirectly, params)
	if resp.Status != rpc.StatusInternalError || len(resp.Buffers) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if fake.TotalCalls() != before {
		t.Fatalf("native service called for malformed request")
	}
}

func TestFileReadShrinksToBytesRead(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	path := native.ASCIIPath("/big.bin")
	file := fake.AddFile(native.ArchiveSDMC, native.EmptyPath(), path, bytes.Repeat([]byte{0x5A}, 400))
	file.ReadLimit = 10
	s := startSession(t, fake)

	h := handleOf(t, call(t, s, MethodOpenFileDirectly, openDirectParams(native.ArchiveSDMC, native.EmptyPath(), path)))
	resp := call(t, s, MethodFileRead, rpc.NewParams().S32(int32(h)).S64(100).S32(50))
	if resp.Status != rpc.StatusOK || len(resp.Buffers) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Buffers[0]) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(resp.Buffers[0]))
	}
}

func TestFileReadNativeFailureEmptiesBuffer(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	s := startSession(t, fake)

	resp := call(t, s, MethodFileRead, rpc.NewParams().S32(77).S64(0).S32(16))
	if resp.Status != rpc.Status(native.ResultInvalidHandle) {
		t.Fatalf("unexpected status %v", resp.Status)
	}
	if len(resp.Buffers) != 1 || len(resp.Buffers[0]) != 0 {
		t.Fatalf("expected one empty buffer, got %+v", resp.Buffers)
	}
}

func TestSystemFileSelectorOutOfRange(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	s := startSession(t, fake)
	before := fake.TotalCalls()

	for _, selector := range []int8{6, -1} {
		resp := call(t, s, MethodGetSystemFile, rpc.NewParams().S8(selector))
		if resp.Status != rpc.StatusGeneric || len(resp.Buffers) != 0 {
			t.Fatalf("selector %d: unexpected response %+v", selector, resp)
		}
	}
	if fake.TotalCalls() != before {
		t.Fatalf("out-of-range selector touched native services")
	}
}

func TestUnknownMethodRejectedBeforeHandler(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	s := startSession(t, fake)
	before := fake.TotalCalls()

	_, err := s.Dispatch(context.Background(), rpc.Request{Method: "FSUSER_DeleteFile", Params: rpc.NewParams().S32(1).Encode()})
	if !errors.Is(err, rpc.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if fake.TotalCalls() != before || len(s.Handles()) != 0 {
		t.Fatalf("unknown method had side effects")
	}
}

func TestTeardownReleasesOnce(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	path := native.ASCIIPath("/a")
	fake.AddFile(native.ArchiveSDMC, native.EmptyPath(), path, []byte("a"))
	fake.Dirs[nativetest.Key(native.ArchiveSDMC, native.EmptyPath(), native.ASCIIPath("/"))] = nil
	s := startSession(t, fake)

	file := handleOf(t, call(t, s, MethodOpenFileDirectly, openDirectParams(native.ArchiveSDMC, native.EmptyPath(), path)))
	archive := handleOf(t, call(t, s, MethodOpenArchive, rpc.NewParams().S32(int32(native.ArchiveSDMC)).Buffer(native.EmptyPath().Encode())))
	dir := handleOf(t, call(t, s, MethodOpenDirectory, rpc.NewParams().S64(int64(archive)).Buffer(native.ASCIIPath("/").Encode())))

	if n := s.Teardown(); n != 3 {
		t.Fatalf("expected 3 released handles, got %d", n)
	}
	if fake.IsOpen(uint32(file)) || fake.IsOpen(uint32(dir)) {
		t.Fatalf("handles still open after teardown")
	}
	if len(fake.Closed["file"]) != 1 || fake.Closed["file"][0] != file {
		t.Fatalf("file close mismatch: %v", fake.Closed["file"])
	}
	if len(fake.Closed["directory"]) != 1 || fake.Closed["directory"][0] != dir {
		t.Fatalf("directory close mismatch: %v", fake.Closed["directory"])
	}
	if len(fake.Closed["archive"]) != 1 || fake.Closed["archive"][0] != archive {
		t.Fatalf("archive close mismatch: %v", fake.Closed["archive"])
	}

	closes := fake.CallCount("CloseFile") + fake.CallCount("CloseDirectory") + fake.CallCount("CloseArchive")
	if n := s.Teardown(); n != 0 {
		t.Fatalf("second teardown released %d", n)
	}
	if got := fake.CallCount("CloseFile") + fake.CallCount("CloseDirectory") + fake.CallCount("CloseArchive"); got != closes {
		t.Fatalf("second teardown closed handles again")
	}
	if _, err := s.Dispatch(context.Background(), rpc.Request{Method: MethodGetTitleID}); !errors.Is(err, ErrTornDown) {
		t.Fatalf("expected ErrTornDown, got %v", err)
	}
}

func TestCallWaitingOnTeardownIsRejected(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	path := native.ASCIIPath("/late.bin")
	fake.AddFile(native.ArchiveSDMC, native.EmptyPath(), path, []byte("late"))
	s := startSession(t, fake)

	// Hold the call lock as Teardown does, then close the session while a
	// call is queued behind it.
	s.callMu.Lock()
	done := make(chan error, 1)
	go func() {
		_, err := s.Dispatch(context.Background(), rpc.Request{
			Method: MethodOpenFileDirectly,
			Params: openDirectParams(native.ArchiveSDMC, native.EmptyPath(), path).Encode(),
		})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	s.stateMu.Lock()
	s.closed = true
	s.stateMu.Unlock()
	s.callMu.Unlock()

	if err := <-done; !errors.Is(err, ErrTornDown) {
		t.Fatalf("expected ErrTornDown, got %v", err)
	}
	if n := fake.CallCount("OpenFileDirectly"); n != 0 {
		t.Fatalf("call ran after teardown: %d opens", n)
	}
	if got := len(s.Handles()); got != 0 {
		t.Fatalf("expected no registered handles, got %d", got)
	}
}

func TestExplicitCloseUnregisters(t *testing.T) {
	testlog.Start(t)

	fake := nativetest.New()
	path := native.ASCIIPath("/a")
	fake.AddFile(native.ArchiveSDMC, native.EmptyPath(), path, []byte("a"))
	s := startSession(t, fake)

	h := handleOf(t, call(t, s, MethodOpenFileDirectly, openDirectParams(native.ArchiveSDMC, native.EmptyPath(), path)))
	resp := call(t, s, MethodFileClose, rpc.NewParams().S32(int32(h)))
	if resp.Status != rpc.StatusOK || len(s.Handles()) != 0 {
		t.Fatalf("close did not unregister: %+v handles=%v", resp, s.Handles())
	}
	if n := s.Teardown(); n != 0 {
		t.Fatalf("teardown released closed handle")
	}
}
