package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrSealed           = errors.New("rpc: result set already sealed")
	ErrResizeOutOfRange = errors.New("rpc: resize beyond buffer capacity")
	ErrForeignBuffer    = errors.New("rpc: buffer not reserved by this call")
)

// Limits bounds the memory a single call may reserve for results.
type Limits struct {
	MaxResultBytes int
	MaxBuffers     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxResultBytes: 24 * 1024 * 1024,
		MaxBuffers:     16,
	}
}

// Buffer is one index-addressed result region. Data spans the full reserved
// capacity; Bytes spans the effective length.
type Buffer struct {
	Index int
	Data  []byte
	n     int
	owner *Results
}

func (b *Buffer) Len() int {
	return b.n
}

func (b *Buffer) Cap() int {
	return len(b.Data)
}

func (b *Buffer) Bytes() []byte {
	return b.Data[:b.n]
}

// Results assembles the ordered result buffers and terminal status of one call.
type Results struct {
	limits Limits
	bufs   []*Buffer
	used   int
	sealed bool
	status Status
}

func NewResults(limits Limits) *Results {
	if limits.MaxBuffers <= 0 {
		limits.MaxBuffers = DefaultLimits().MaxBuffers
	}
	return &Results{limits: limits}
}

// Reserve allocates result buffer index with size bytes. Indices must be
// issued 0,1,2,... within a call; anything else is a handler bug and panics.
// A nil return means the call's memory budget is exhausted and the handler
// must return without sealing.
func (r *Results) Reserve(index, size int) *Buffer {
	if r.sealed {
		panic(fmt.Errorf("%w: reserve index %d", ErrSealed, index))
	}
	if index != len(r.bufs) {
		panic(fmt.Sprintf("rpc: reserve index %d out of order, next is %d", index, len(r.bufs)))
	}
	if size < 0 || len(r.bufs) >= r.limits.MaxBuffers {
		return nil
	}
	if r.limits.MaxResultBytes > 0 && r.used+size > r.limits.MaxResultBytes {
		return nil
	}
	b := &Buffer{Index: index, Data: make([]byte, size), n: size, owner: r}
	r.bufs = append(r.bufs, b)
	r.used += size
	return b
}

// Resize sets the effective length of an already reserved buffer.
func (r *Results) Resize(b *Buffer, n int) error {
	if r.sealed {
		return ErrSealed
	}
	if b == nil || b.owner != r {
		return ErrForeignBuffer
	}
	if n < 0 || n > len(b.Data) {
		return fmt.Errorf("%w: %d > %d", ErrResizeOutOfRange, n, len(b.Data))
	}
	b.n = n
	return nil
}

// Finish seals the result set with status.
func (r *Results) Finish(status Status) {
	if r.sealed {
		panic(ErrSealed)
	}
	r.status = status
	r.sealed = true
}

// FinishInternalError seals with StatusInternalError and drops any reserved buffers.
func (r *Results) FinishInternalError() {
	r.bufs = nil
	r.used = 0
	r.Finish(StatusInternalError)
}

func (r *Results) Sealed() bool {
	return r.sealed
}

func (r *Results) Status() Status {
	return r.status
}

// Count returns the number of buffers reserved so far.
func (r *Results) Count() int {
	return len(r.bufs)
}

// Response snapshots the sealed result set. ok is false until Finish runs.
func (r *Results) Response() (Response, bool) {
	if !r.sealed {
		return Response{}, false
	}
	out := Response{Status: r.status, Buffers: make([][]byte, 0, len(r.bufs))}
	for _, b := range r.bufs {
		out.Buffers = append(out.Buffers, b.Bytes())
	}
	return out, true
}
