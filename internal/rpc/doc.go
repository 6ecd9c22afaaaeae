// Package rpc owns method dispatch and parameter/result marshaling.
//
// Ownership boundary:
// - positional parameter cursor
// - per-call result assembler
// - immutable method registry and dispatch entry point
//
// Handlers never see wire frames; transports translate frames into Request
// values and Response values back into frames.
package rpc
