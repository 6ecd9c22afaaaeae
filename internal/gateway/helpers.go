package gateway

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/rpc"
)

var ErrNegativeParam = errors.New("gateway: negative offset or size")

// pathParam reads one path blob parameter.
func pathParam(in *rpc.Cursor) (native.Path, bool) {
	blob, ok := in.Buffer()
	if !ok {
		return native.Path{}, false
	}
	p, err := native.ParsePath(blob)
	if err != nil {
		in.Fail(err)
		return native.Path{}, false
	}
	return p, true
}

// finishNative seals the host result code carried by err.
func finishNative(out *rpc.Results, err error) {
	out.Finish(rpc.Status(native.Code(err)))
}

// reserveSized reserves a buffer for a host-reported size. Sizes that do not
// fit a result buffer fail like any other reservation.
func reserveSized(out *rpc.Results, index int, size uint64) *rpc.Buffer {
	if size > math.MaxInt32 {
		return nil
	}
	return out.Reserve(index, int(size))
}

func reserveU32(out *rpc.Results, index int, v uint32) bool {
	b := out.Reserve(index, 4)
	if b == nil {
		return false
	}
	binary.LittleEndian.PutUint32(b.Data, v)
	return true
}

func reserveU64(out *rpc.Results, index int, v uint64) bool {
	b := out.Reserve(index, 8)
	if b == nil {
		return false
	}
	binary.LittleEndian.PutUint64(b.Data, v)
	return true
}
