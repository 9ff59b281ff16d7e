package ipc

import "errors"

var (
	ErrShortHeader             = errors.New("ipc: short header")
	ErrShortPayload            = errors.New("ipc: short payload")
	ErrProtocolVersionMismatch = errors.New("ipc: protocol version mismatch")
	ErrInvalidSize             = errors.New("ipc: declared size smaller than header")
	ErrSizeOverflow            = errors.New("ipc: message size overflows uint16")
	ErrPayloadTooSmall         = errors.New("ipc: payload too small")
	ErrPayloadMalformed        = errors.New("ipc: payload malformed")
	ErrNotFixedSize            = errors.New("ipc: type has no fixed wire size")
	ErrShortFlatten            = errors.New("ipc: payload flattened fewer bytes than declared")
)
