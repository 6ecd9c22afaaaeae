// Package native describes the privileged host services the gateway calls:
// filesystem, process, loader, secure storage, account manager and system
// configuration. Failures carry the host's 32-bit result code so handlers can
// pass it through to the caller unchanged.
package native

import (
	"errors"
	"fmt"
)

// Result codes reported by the backends in this repository. Hardware
// backends report whatever the host returns.
const (
	ResultNotFound      int32 = -0x377FBB88 // 0xC8804478
	ResultAlreadyExists int32 = -0x377FBB42 // 0xC88044BE
	ResultInvalidHandle int32 = -0x271FF809 // 0xD8E007F7
	ResultNotSupported  int32 = -0x1F3FB942 // 0xE0C046BE
	ResultOutOfRange    int32 = -0x1F3FB9C0 // 0xE0C04640
	ResultInternal      int32 = -0x271FF7F6 // 0xD8E0080A
)

// ResultError is a failed host call.
type ResultError struct {
	Op   string
	Code int32
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("native: %s failed: 0x%08X", e.Op, uint32(e.Code))
}

func Fail(op string, code int32) error {
	return &ResultError{Op: op, Code: code}
}

// Code returns the host result code carried by err, 0 for nil and
// ResultInternal for errors that did not come from a host call.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	var re *ResultError
	if errors.As(err, &re) {
		return re.Code
	}
	return ResultInternal
}

// Services bundles the host collaborators one gateway session uses.
type Services struct {
	FS      FS
	Process Process
	Loader  Loader
	PXI     PXI
	AM      AM
	Config  Config
	Shared  SharedConfig
}

func (s Services) Validate() error {
	switch {
	case s.FS == nil:
		return errors.New("native: filesystem service missing")
	case s.Process == nil:
		return errors.New("native: process service missing")
	case s.Loader == nil:
		return errors.New("native: loader service missing")
	case s.PXI == nil:
		return errors.New("native: pxi service missing")
	case s.AM == nil:
		return errors.New("native: am service missing")
	case s.Config == nil:
		return errors.New("native: config service missing")
	case s.Shared == nil:
		return errors.New("native: shared config missing")
	}
	return nil
}
