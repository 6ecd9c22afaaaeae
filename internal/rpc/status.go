package rpc

import "fmt"

// Status is the signed 32-bit call status returned to the caller.
// Zero is success; negative values are native or gateway-defined failures.
type Status int32

const (
	StatusOK Status = 0

	// StatusGeneric rejects a request without touching privileged resources.
	StatusGeneric Status = -1
	// StatusShortRead reports that a native read returned fewer bytes than its size query.
	StatusShortRead Status = -2
	// StatusStaleData reports a payload integrity check failure.
	StatusStaleData Status = -3
	// StatusInternalError seals parameter errors and gateway-side failures.
	StatusInternalError Status = -0x100
)

func (s Status) Failed() bool {
	return s < 0
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusGeneric:
		return "generic"
	case StatusShortRead:
		return "short_read"
	case StatusStaleData:
		return "stale_data"
	case StatusInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("0x%08X", uint32(s))
	}
}

// Request is one decoded method invocation.
type Request struct {
	Method string
	Params []byte
}

// Response is one sealed call result.
type Response struct {
	Status  Status
	Buffers [][]byte
}
