package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/articgate/internal/protocol/tlv"
)

var (
	ErrParamShort    = errors.New("rpc: parameter region exhausted")
	ErrParamType     = errors.New("rpc: parameter type mismatch")
	ErrParamLength   = errors.New("rpc: parameter length mismatch")
	ErrParamPosition = errors.New("rpc: parameter out of position")
	ErrParamTrailing = errors.New("rpc: unconsumed parameters")
)

// Cursor reads positional parameters from one request's parameter region.
//
// Every parameter is a tlv record whose id is its zero-based position. Once a
// read fails the cursor stays failed and every later read, including Finish,
// fails too.
type Cursor struct {
	data []byte
	off  int
	pos  uint16
	err  error
}

func NewCursor(params []byte) *Cursor {
	return &Cursor{data: params}
}

func (c *Cursor) S8() (int8, bool) {
	v, ok := c.next(tlv.TypeS8, 1)
	if !ok {
		return 0, false
	}
	return int8(v[0]), true
}

func (c *Cursor) S32() (int32, bool) {
	v, ok := c.next(tlv.TypeS32, 4)
	if !ok {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(v)), true
}

func (c *Cursor) S64() (int64, bool) {
	v, ok := c.next(tlv.TypeS64, 8)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v)), true
}

// Buffer returns the next opaque byte parameter. The slice aliases the
// request and must not be retained past the call.
func (c *Cursor) Buffer() ([]byte, bool) {
	return c.next(tlv.TypeBytes, -1)
}

// Finish reports whether every parameter was consumed exactly once.
func (c *Cursor) Finish() bool {
	if c.err != nil {
		return false
	}
	if c.off != len(c.data) {
		c.err = fmt.Errorf("%w: %d bytes left", ErrParamTrailing, len(c.data)-c.off)
		return false
	}
	return true
}

// Fail marks the cursor failed with err. Helpers that decode structured
// values out of a parameter use it to reject the whole call.
func (c *Cursor) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Cursor) Failed() bool {
	return c.err != nil
}

func (c *Cursor) Err() error {
	return c.err
}

// Consumed returns the number of parameters read so far.
func (c *Cursor) Consumed() int {
	return int(c.pos)
}

func (c *Cursor) next(typ uint8, size int) ([]byte, bool) {
	if c.err != nil {
		return nil, false
	}
	f, next, err := tlv.ReadField(c.data, c.off)
	if err != nil {
		c.err = fmt.Errorf("%w: param %d: %v", ErrParamShort, c.pos, err)
		return nil, false
	}
	if f.ID != c.pos {
		c.err = fmt.Errorf("%w: got %d want %d", ErrParamPosition, f.ID, c.pos)
		return nil, false
	}
	if f.Type != typ {
		c.err = fmt.Errorf("%w: param %d got %d want %d", ErrParamType, c.pos, f.Type, typ)
		return nil, false
	}
	if size >= 0 && len(f.Value) != size {
		c.err = fmt.Errorf("%w: param %d got %d want %d", ErrParamLength, c.pos, len(f.Value), size)
		return nil, false
	}
	c.off = next
	c.pos++
	return f.Value, true
}
