package rpc

import (
	"errors"
	"testing"

	"github.com/danmuck/articgate/internal/testutil/testlog"
)

func TestReserveSequentialIndices(t *testing.T) {
	testlog.Start(t)

	out := NewResults(DefaultLimits())
	if b := out.Reserve(0, 4); b == nil || b.Len() != 4 {
		t.Fatalf("reserve 0 failed: %+v", b)
	}
	if b := out.Reserve(1, 0); b == nil || b.Len() != 0 {
		t.Fatalf("reserve 1 failed: %+v", b)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected out-of-order reserve to panic")
		}
	}()
	out.Reserve(3, 1)
}

func TestReserveBudget(t *testing.T) {
	testlog.Start(t)

	out := NewResults(Limits{MaxResultBytes: 8, MaxBuffers: 2})
	if b := out.Reserve(0, 6); b == nil {
		t.Fatalf("first reserve failed")
	}
	if b := out.Reserve(1, 3); b != nil {
		t.Fatalf("expected budget exhaustion")
	}
	if b := out.Reserve(1, 2); b == nil {
		t.Fatalf("reserve within budget failed")
	}
	if b := out.Reserve(2, 0); b != nil {
		t.Fatalf("expected buffer count limit")
	}
	if b := out.Reserve(2, -1); b != nil {
		t.Fatalf("expected negative size to fail")
	}
}

func TestResizeBounds(t *testing.T) {
	testlog.Start(t)

	out := NewResults(DefaultLimits())
	b := out.Reserve(0, 8)
	if err := out.Resize(b, 3); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if len(b.Bytes()) != 3 || b.Cap() != 8 {
		t.Fatalf("unexpected sizes len=%d cap=%d", len(b.Bytes()), b.Cap())
	}
	if err := out.Resize(b, 8); err != nil {
		t.Fatalf("grow back to capacity: %v", err)
	}
	if err := out.Resize(b, 9); !errors.Is(err, ErrResizeOutOfRange) {
		t.Fatalf("expected ErrResizeOutOfRange, got %v", err)
	}
	other := NewResults(DefaultLimits())
	if err := other.Resize(b, 1); !errors.Is(err, ErrForeignBuffer) {
		t.Fatalf("expected ErrForeignBuffer, got %v", err)
	}
}

func TestFinishSealsResponse(t *testing.T) {
	testlog.Start(t)

	out := NewResults(DefaultLimits())
	b := out.Reserve(0, 4)
	copy(b.Data, []byte{1, 2, 3, 4})
	_ = out.Resize(b, 2)
	if _, ok := out.Response(); ok {
		t.Fatalf("expected unsealed response to be unavailable")
	}
	out.Finish(StatusOK)
	resp, ok := out.Response()
	if !ok || resp.Status != StatusOK || len(resp.Buffers) != 1 || len(resp.Buffers[0]) != 2 {
		t.Fatalf("unexpected response: %+v ok=%v", resp, ok)
	}
	if err := out.Resize(b, 1); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
}

func TestFinishInternalErrorDropsBuffers(t *testing.T) {
	testlog.Start(t)

	out := NewResults(DefaultLimits())
	out.Reserve(0, 4)
	out.FinishInternalError()
	resp, ok := out.Response()
	if !ok || resp.Status != StatusInternalError || len(resp.Buffers) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
