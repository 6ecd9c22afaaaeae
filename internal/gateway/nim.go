package gateway

import (
	"github.com/danmuck/articgate/internal/lzss"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/rs/zerolog/log"
)

// expandNIM reserves result buffer 1 and decompresses blob into it. A blob
// that cannot be expanded seals the call as stale data; ok is false whenever
// the caller must stop.
func (s *Session) expandNIM(blob []byte, out *rpc.Results) (*rpc.Buffer, bool) {
	size, err := lzss.DecompressedSize(blob)
	if err != nil {
		log.Error().Str("session", s.ID).Err(err).Msg("gateway.getNIM unreadable payload footer")
		if out.Reserve(1, 0) == nil {
			return nil, false
		}
		out.Finish(rpc.StatusStaleData)
		return nil, false
	}
	payload := out.Reserve(1, size)
	if payload == nil {
		return nil, false
	}
	if err := lzss.Decompress(blob, payload.Data); err != nil {
		log.Error().Str("session", s.ID).Err(err).Msg("gateway.getNIM decompression failed")
		rejectNIM(out, payload)
		return nil, false
	}
	return payload, true
}

func verifyNIM(payload []byte) bool {
	return lzss.VerifyPayload(payload)
}

// rejectNIM empties the payload buffer and seals the call as stale data.
func rejectNIM(out *rpc.Results, payload *rpc.Buffer) {
	_ = out.Resize(payload, 0)
	out.Finish(rpc.StatusStaleData)
}
