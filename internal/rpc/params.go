package rpc

import (
	"encoding/binary"

	"github.com/danmuck/articgate/internal/protocol/tlv"
)

// Params builds a parameter region in the order a handler reads it.
type Params struct {
	fields []tlv.Field
}

func NewParams() *Params {
	return &Params{}
}

func (p *Params) S8(v int8) *Params {
	return p.add(tlv.TypeS8, []byte{byte(v)})
}

func (p *Params) S32(v int32) *Params {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return p.add(tlv.TypeS32, buf)
}

func (p *Params) S64(v int64) *Params {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return p.add(tlv.TypeS64, buf)
}

func (p *Params) Buffer(v []byte) *Params {
	buf := make([]byte, len(v))
	copy(buf, v)
	return p.add(tlv.TypeBytes, buf)
}

func (p *Params) Encode() []byte {
	if p == nil {
		return nil
	}
	return tlv.EncodeFields(p.fields)
}

func (p *Params) add(typ uint8, v []byte) *Params {
	p.fields = append(p.fields, tlv.Field{ID: uint16(len(p.fields)), Type: typ, Value: v})
	return p
}
