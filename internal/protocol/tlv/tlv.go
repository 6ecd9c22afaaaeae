package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
)

// Type IDs shared by request fields and parameter records.
const (
	TypeS8     uint8 = 1
	TypeS32    uint8 = 2
	TypeS64    uint8 = 3
	TypeBytes  uint8 = 4
	TypeString uint8 = 5
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func EncodeField(f Field) []byte {
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
	copy(buf[7:], f.Value)
	return buf
}

// ReadField decodes the field starting at payload[offset] and returns it with
// the offset of the next field. The returned value aliases payload.
func ReadField(payload []byte, offset int) (Field, int, error) {
	if offset < 0 || len(payload)-offset < HeaderLen {
		return Field{}, offset, ErrShortFieldHeader
	}
	id := binary.BigEndian.Uint16(payload[offset : offset+2])
	typeID := payload[offset+2]
	l := binary.BigEndian.Uint32(payload[offset+3 : offset+7])
	start := offset + HeaderLen
	if uint64(len(payload)-start) < uint64(l) {
		return Field{}, offset, ErrShortFieldValue
	}
	end := start + int(l)
	return Field{ID: id, Type: typeID, Value: payload[start:end]}, end, nil
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		f, next, err := ReadField(payload, i)
		if err != nil {
			return nil, err
		}
		val := make([]byte, len(f.Value))
		copy(val, f.Value)
		f.Value = val
		fields = append(fields, f)
		i = next
	}
	return fields, nil
}

func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0)
	for _, f := range fields {
		out = append(out, EncodeField(f)...)
	}
	return out
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}

func S32FromBytes(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("tlv: invalid s32 length: %d", len(b))
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func PutS32(v int32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(v))
	return out
}
