package transport

import (
	"io"
)

// ErrorCallback receives a diagnostic message and the platform error code
// whenever Create, Accept or Unlink fails. It never replaces the returned
// error; it exists for long-lived accept loops that want to log without
// unwinding.
type ErrorCallback func(message string, code uint32)

// Endpoint listens on a named OS resource and hands out one Connection per
// accepted client.
type Endpoint interface {
	// Name is the resolved socket path or pipe name.
	Name() string
	// Accept blocks until a client connects. It does not retry.
	Accept(onError ErrorCallback) (Connection, error)
	// Unlink removes the name from the OS namespace. Calling it again is a
	// no-op.
	Unlink(onError ErrorCallback)
	// Close unlinks if needed and releases the OS resource exactly once.
	Close() error
}

// Connection is one accepted client session. Read fills the whole buffer or
// fails; Write may buffer until Flush.
type Connection interface {
	io.Reader
	io.Writer
	Flush() error
	Close() error
}

func report(onError ErrorCallback, err *OpError) {
	if onError == nil || err == nil {
		return
	}
	onError(err.Message(), err.Code)
}
