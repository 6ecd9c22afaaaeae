package schema

import (
	"fmt"

	"github.com/danmuck/articgate/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgRequest  uint32 = 1
	MsgResponse uint32 = 2
	MsgFault    uint32 = 3
)

// Field IDs.
const (
	FieldMethod uint16 = 1
	FieldParams uint16 = 2

	FieldStatus uint16 = 100

	// Result buffer i travels as field FieldBufferBase+i.
	FieldBufferBase uint16 = 200
	MaxBuffers             = 16

	FieldReason uint16 = 300
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgRequest: {
		{FieldMethod, tlv.TypeString},
		{FieldParams, tlv.TypeBytes},
	},
	MsgResponse: {
		{FieldStatus, tlv.TypeS32},
	},
	MsgFault: {
		{FieldReason, tlv.TypeString},
	},
}

// BufferField returns the field id carrying result buffer index.
func BufferField(index int) uint16 {
	return FieldBufferBase + uint16(index)
}

// IsBufferField reports whether id carries a result buffer and which index.
func IsBufferField(id uint16) (int, bool) {
	if id < FieldBufferBase || id >= FieldBufferBase+MaxBuffers {
		return 0, false
	}
	return int(id - FieldBufferBase), true
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	log.Trace().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate")
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	if messageType == MsgResponse {
		for _, f := range fields {
			if _, ok := IsBufferField(f.ID); ok && f.Type != tlv.TypeBytes {
				return ValidationError{MessageType: messageType, FieldID: f.ID, Reason: "type mismatch"}
			}
		}
	}
	return nil
}
