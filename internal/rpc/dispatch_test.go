package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/articgate/internal/testutil/testlog"
)

func echoHandler(_ context.Context, in *Cursor, out *Results) {
	v, ok := in.S32()
	if !ok || !in.Finish() {
		return
	}
	b := out.Reserve(0, 4)
	if b == nil {
		return
	}
	b.Data[0] = byte(v)
	out.Finish(StatusOK)
}

func testRegistry(t *testing.T, methods ...Method) *Registry {
	t.Helper()
	methods = append(methods, Method{Name: "Echo", Handler: HandlerFunc(echoHandler)})
	reg, err := NewRegistry(DefaultLimits(), methods...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestDispatchSuccess(t *testing.T) {
	testlog.Start(t)

	reg := testRegistry(t)
	resp, err := reg.Dispatch(context.Background(), Request{Method: "Echo", Params: NewParams().S32(9).Encode()})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.Status != StatusOK || len(resp.Buffers) != 1 || resp.Buffers[0][0] != 9 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	testlog.Start(t)

	called := false
	reg := testRegistry(t, Method{Name: "Other", Handler: HandlerFunc(func(context.Context, *Cursor, *Results) {
		called = true
	})})
	_, err := reg.Dispatch(context.Background(), Request{Method: "Missing"})
	if !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if called {
		t.Fatalf("handler ran for unknown method")
	}
}

func TestDispatchParamErrorSealsInternal(t *testing.T) {
	testlog.Start(t)

	reg := testRegistry(t)
	resp, err := reg.Dispatch(context.Background(), Request{Method: "Echo", Params: NewParams().S64(9).Encode()})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.Status != StatusInternalError || len(resp.Buffers) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatchAbortedCall(t *testing.T) {
	testlog.Start(t)

	reg := testRegistry(t, Method{Name: "Big", Handler: HandlerFunc(func(_ context.Context, in *Cursor, out *Results) {
		if !in.Finish() {
			return
		}
		if out.Reserve(0, 1<<30) == nil {
			return
		}
		out.Finish(StatusOK)
	})})
	_, err := reg.Dispatch(context.Background(), Request{Method: "Big"})
	if !errors.Is(err, ErrCallAborted) {
		t.Fatalf("expected ErrCallAborted, got %v", err)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	testlog.Start(t)

	reg := testRegistry(t, Method{Name: "Bad", Handler: HandlerFunc(func(_ context.Context, _ *Cursor, out *Results) {
		out.Reserve(1, 1)
	})})
	_, err := reg.Dispatch(context.Background(), Request{Method: "Bad"})
	if !errors.Is(err, ErrCallAborted) {
		t.Fatalf("expected ErrCallAborted, got %v", err)
	}
}

func TestRegistryRejectsBadMethods(t *testing.T) {
	testlog.Start(t)

	h := HandlerFunc(echoHandler)
	if _, err := NewRegistry(DefaultLimits(), Method{Name: "", Handler: h}); !errors.Is(err, ErrInvalidMethodName) {
		t.Fatalf("expected empty name rejection, got %v", err)
	}
	long := "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345"
	if _, err := NewRegistry(DefaultLimits(), Method{Name: long, Handler: h}); !errors.Is(err, ErrInvalidMethodName) {
		t.Fatalf("expected long name rejection, got %v", err)
	}
	if _, err := NewRegistry(DefaultLimits(), Method{Name: "A", Handler: h}, Method{Name: "A", Handler: h}); !errors.Is(err, ErrMethodExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := NewRegistry(DefaultLimits(), Method{Name: "A"}); !errors.Is(err, ErrHandlerNil) {
		t.Fatalf("expected nil handler rejection, got %v", err)
	}
}

func TestRegistryMethodsSorted(t *testing.T) {
	testlog.Start(t)

	reg := testRegistry(t, Method{Name: "Alpha", Handler: HandlerFunc(echoHandler)})
	names := reg.Methods()
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Echo" {
		t.Fatalf("unexpected methods: %v", names)
	}
}
