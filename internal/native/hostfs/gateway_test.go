package hostfs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/articgate/internal/gateway"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/native/hostfs"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/danmuck/articgate/internal/testutil/testlog"
)

func TestGatewayOverHostDirectory(t *testing.T) {
	testlog.Start(t)

	root := t.TempDir()
	if err := hostfs.WriteManifest(filepath.Join(root, hostfs.ManifestName), hostfs.Manifest{DeviceID: 0xAB}); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	otp := filepath.Join(root, "sdmc", "luma", "backups", "000000AB", "otp.bin")
	if err := os.MkdirAll(filepath.Dir(otp), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(otp, []byte("otp-data"), 0o644); err != nil {
		t.Fatalf("write otp: %v", err)
	}

	b, err := hostfs.Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	s, err := gateway.NewSession(b.Services(), gateway.DefaultConfig())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Teardown()

	resp, err := s.Dispatch(context.Background(), rpc.Request{
		Method: gateway.MethodGetSystemFile,
		Params: rpc.NewParams().S8(gateway.SystemFileOTP).Encode(),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.Status != rpc.StatusOK || string(resp.Buffers[0]) != "otp-data" {
		t.Fatalf("unexpected response: status=%v buffers=%q", resp.Status, resp.Buffers)
	}

	resp, err = s.Dispatch(context.Background(), rpc.Request{
		Method: gateway.MethodGetSystemFile,
		Params: rpc.NewParams().S8(gateway.SystemFileSecureInfo).Encode(),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.Status != rpc.Status(native.ResultNotFound) {
		t.Fatalf("expected not found status for missing secure info, got %v", resp.Status)
	}
}
