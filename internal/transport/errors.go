package transport

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	ErrCreation    = errors.New("transport: endpoint creation failed")
	ErrAccept      = errors.New("transport: accept failed")
	ErrIO          = errors.New("transport: connection io failed")
	ErrUnlink      = errors.New("transport: unlink failed")
	ErrDial        = errors.New("transport: dial failed")
	ErrClosed      = errors.New("transport: endpoint closed")
	ErrNameTooLong = errors.New("transport: endpoint name too long")
	ErrEmptyName   = errors.New("transport: endpoint name is empty")
)

// OpError describes a failed endpoint or connection operation. It matches
// its Kind (ErrCreation, ErrAccept, ErrIO) and the underlying OS error with
// errors.Is.
type OpError struct {
	Op   string
	Name string
	Code uint32
	Kind error
	Err  error
}

func newOpError(kind error, op, name string, err error) *OpError {
	return &OpError{Op: op, Name: name, Code: errorCode(err), Kind: kind, Err: err}
}

func (e *OpError) Message() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *OpError) Error() string {
	return fmt.Sprintf("transport: %s (code=%d)", e.Message(), e.Code)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// errorCode extracts the OS error number, or 0 when err did not come from a
// system call.
func errorCode(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}
