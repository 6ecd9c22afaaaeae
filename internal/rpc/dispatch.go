package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownMethod = errors.New("rpc: unknown method")
	ErrCallAborted   = errors.New("rpc: call aborted without result")
)

// Dispatch looks up req.Method and runs its handler against a fresh cursor
// and result set. Unknown methods are rejected before any handler runs. A
// handler that returns without sealing after a parameter failure is sealed
// with StatusInternalError; one that returns unsealed otherwise (or panics)
// yields ErrCallAborted.
func (r *Registry) Dispatch(ctx context.Context, req Request) (Response, error) {
	h, ok := r.handlers[req.Method]
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}

	in := NewCursor(req.Params)
	out := NewResults(r.limits)
	if err := invoke(ctx, h, in, out); err != nil {
		log.Error().Str("method", req.Method).Err(err).Msg("rpc.Dispatch handler panic")
		return Response{}, fmt.Errorf("%w: %s: %v", ErrCallAborted, req.Method, err)
	}

	if !out.Sealed() && in.Failed() {
		log.Warn().Str("method", req.Method).Err(in.Err()).Msg("rpc.Dispatch parameter error")
		out.FinishInternalError()
	}
	resp, sealed := out.Response()
	if !sealed {
		return Response{}, fmt.Errorf("%w: %s", ErrCallAborted, req.Method)
	}
	return resp, nil
}

func invoke(ctx context.Context, h Handler, in *Cursor, out *Results) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	h.ServeRPC(ctx, in, out)
	return nil
}
