package session

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/danmuck/articgate/internal/protocol/frame"
	"github.com/danmuck/articgate/internal/protocol/schema"
	"github.com/danmuck/articgate/internal/protocol/tlv"
	"github.com/danmuck/articgate/internal/rpc"
)

var (
	ErrUnexpectedMessage = errors.New("session: unexpected message type")
	ErrBufferGap         = errors.New("session: result buffers not contiguous")
	ErrTooManyBuffers    = errors.New("session: too many result buffers")
)

// Fault is a call the gateway refused to seal, such as an unknown method or
// a handler that ran out of result memory.
type Fault struct {
	Reason string
}

func (f Fault) Error() string {
	return "session: call fault: " + f.Reason
}

// EncodeRequestFrame encodes one call into framed protocol bytes.
func EncodeRequestFrame(messageID uint64, req rpc.Request) ([]byte, error) {
	if err := rpc.ValidateMethodName(req.Method); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		{ID: schema.FieldMethod, Type: tlv.TypeString, Value: []byte(req.Method)},
		{ID: schema.FieldParams, Type: tlv.TypeBytes, Value: req.Params},
	}
	return encode(messageID, schema.MsgRequest, 0, fields)
}

// DecodeRequestFrame decodes one request frame payload with schema validation.
func DecodeRequestFrame(f frame.Frame) (rpc.Request, error) {
	if f.Header.MessageType != schema.MsgRequest {
		return rpc.Request{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, f.Header.MessageType)
	}
	fields, err := decode(schema.MsgRequest, f.Payload)
	if err != nil {
		return rpc.Request{}, err
	}
	method, _ := tlv.GetField(fields, schema.FieldMethod)
	params, _ := tlv.GetField(fields, schema.FieldParams)
	return rpc.Request{Method: string(method.Value), Params: params.Value}, nil
}

// EncodeResponseFrame encodes a sealed call result.
func EncodeResponseFrame(messageID uint64, resp rpc.Response) ([]byte, error) {
	if len(resp.Buffers) > schema.MaxBuffers {
		return nil, fmt.Errorf("%w: %d", ErrTooManyBuffers, len(resp.Buffers))
	}
	fields := make([]tlv.Field, 0, 1+len(resp.Buffers))
	fields = append(fields, tlv.Field{ID: schema.FieldStatus, Type: tlv.TypeS32, Value: tlv.PutS32(int32(resp.Status))})
	for i, b := range resp.Buffers {
		fields = append(fields, tlv.Field{ID: schema.BufferField(i), Type: tlv.TypeBytes, Value: b})
	}
	return encode(messageID, schema.MsgResponse, frame.FlagIsResponse, fields)
}

// DecodeResponseFrame decodes a response frame. Fault frames decode to a Fault error.
func DecodeResponseFrame(f frame.Frame) (rpc.Response, error) {
	switch f.Header.MessageType {
	case schema.MsgFault:
		fault, err := DecodeFaultFrame(f)
		if err != nil {
			return rpc.Response{}, err
		}
		return rpc.Response{}, fault
	case schema.MsgResponse:
	default:
		return rpc.Response{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, f.Header.MessageType)
	}

	fields, err := decode(schema.MsgResponse, f.Payload)
	if err != nil {
		return rpc.Response{}, err
	}
	statusField, _ := tlv.GetField(fields, schema.FieldStatus)
	status, err := tlv.S32FromBytes(statusField.Value)
	if err != nil {
		return rpc.Response{}, err
	}

	var slots [schema.MaxBuffers][]byte
	count := 0
	for _, field := range fields {
		idx, ok := schema.IsBufferField(field.ID)
		if !ok {
			continue
		}
		slots[idx] = field.Value
		if idx+1 > count {
			count = idx + 1
		}
	}
	buffers := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if slots[i] == nil {
			return rpc.Response{}, fmt.Errorf("%w: missing index %d", ErrBufferGap, i)
		}
		buffers = append(buffers, slots[i])
	}
	return rpc.Response{Status: rpc.Status(status), Buffers: buffers}, nil
}

// EncodeFaultFrame encodes a refused call.
func EncodeFaultFrame(messageID uint64, reason string) ([]byte, error) {
	fields := []tlv.Field{
		{ID: schema.FieldReason, Type: tlv.TypeString, Value: []byte(reason)},
	}
	return encode(messageID, schema.MsgFault, frame.FlagIsResponse|frame.FlagIsError, fields)
}

func DecodeFaultFrame(f frame.Frame) (Fault, error) {
	if f.Header.MessageType != schema.MsgFault {
		return Fault{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, f.Header.MessageType)
	}
	fields, err := decode(schema.MsgFault, f.Payload)
	if err != nil {
		return Fault{}, err
	}
	reason, _ := tlv.GetField(fields, schema.FieldReason)
	return Fault{Reason: string(reason.Value)}, nil
}

func encode(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(messageType uint32, payload []byte) ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}
