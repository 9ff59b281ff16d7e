//go:build windows

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

const (
	// MaxPipeNameLength bounds the full pipe name, terminator included.
	MaxPipeNameLength = 256

	pipeBufferSize = 16 * 1024
)

// PipeEndpoint is the named-pipe Endpoint. Every Accept serves a fresh
// instance of the same pipe name.
type PipeEndpoint struct {
	name string
	ln   net.Listener

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Endpoint = (*PipeEndpoint)(nil)

// Create opens the platform Endpoint for name. See ResolveName for how name
// maps to a pipe name.
func Create(name string, onError ErrorCallback) (Endpoint, error) {
	ep, err := NewPipeEndpoint(ResolveName(name), onError)
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// NewPipeEndpoint creates the first instance of the pipe. The default
// security descriptor limits access to the creating user.
func NewPipeEndpoint(name string, onError ErrorCallback) (*PipeEndpoint, error) {
	if name == "" || name == pipePrefix {
		opErr := newOpError(ErrCreation, "create", name, ErrEmptyName)
		report(onError, opErr)
		return nil, opErr
	}
	if len(name)+1 > MaxPipeNameLength {
		opErr := newOpError(ErrCreation, "create", name,
			fmt.Errorf("%w: %d bytes exceeds %d: %w", ErrNameTooLong, len(name)+1, MaxPipeNameLength, windows.ERROR_FILENAME_EXCED_RANGE))
		report(onError, opErr)
		return nil, opErr
	}

	ln, err := winio.ListenPipe(name, &winio.PipeConfig{
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
	if err != nil {
		opErr := newOpError(ErrCreation, "create", name, err)
		report(onError, opErr)
		return nil, opErr
	}
	return &PipeEndpoint{name: name, ln: ln}, nil
}

func (e *PipeEndpoint) Name() string {
	return e.name
}

func (e *PipeEndpoint) Accept(onError ErrorCallback) (Connection, error) {
	conn, err := e.ln.Accept()
	if err != nil {
		if e.closed.Load() || errors.Is(err, winio.ErrPipeListenerClosed) || errors.Is(err, net.ErrClosed) {
			return nil, newOpError(ErrAccept, "accept", e.name, fmt.Errorf("%w: %w", ErrClosed, err))
		}
		opErr := newOpError(ErrAccept, "accept", e.name, err)
		report(onError, opErr)
		return nil, opErr
	}
	return newStream(conn), nil
}

// Unlink is a no-op: the OS reclaims a pipe name when its last handle
// closes, so there is nothing to remove and nothing to report.
func (e *PipeEndpoint) Unlink(ErrorCallback) {}

func (e *PipeEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.ln.Close()
	})
	return e.closeErr
}

// Dial connects to the endpoint named name, waiting for a free pipe
// instance until ctx is done.
func Dial(ctx context.Context, name string) (*Stream, error) {
	path := ResolveName(name)
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		return nil, newOpError(ErrDial, "dial", path, err)
	}
	return newStream(conn), nil
}
