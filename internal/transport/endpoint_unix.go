//go:build unix

package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const socketPerm = 0o600

// maxSocketPath is the sun_path capacity, terminator included.
var maxSocketPath = len(unix.RawSockaddrUnix{}.Path)

// SocketEndpoint is the domain-socket Endpoint. The socket file is owned by
// the endpoint and removed by Unlink.
type SocketEndpoint struct {
	path string
	ln   *net.UnixListener

	mu       sync.Mutex
	unlinked bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Endpoint = (*SocketEndpoint)(nil)

// Create binds the platform Endpoint for name. See ResolveName for how name
// maps to a socket path.
func Create(name string, onError ErrorCallback) (Endpoint, error) {
	ep, err := NewSocketEndpoint(ResolveName(name), onError)
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// NewSocketEndpoint binds a stream socket at path and restricts it to the
// owning user. An existing socket file at path is not replaced.
func NewSocketEndpoint(path string, onError ErrorCallback) (*SocketEndpoint, error) {
	if path == "" {
		opErr := newOpError(ErrCreation, "create", path, ErrEmptyName)
		report(onError, opErr)
		return nil, opErr
	}
	if len(path)+1 > maxSocketPath {
		opErr := newOpError(ErrCreation, "create", path,
			fmt.Errorf("%w: %d bytes exceeds %d: %w", ErrNameTooLong, len(path)+1, maxSocketPath, unix.ENAMETOOLONG))
		report(onError, opErr)
		return nil, opErr
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		opErr := newOpError(ErrCreation, "bind", path, err)
		report(onError, opErr)
		return nil, opErr
	}
	ln.SetUnlinkOnClose(false)

	if err := os.Chmod(path, socketPerm); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		opErr := newOpError(ErrCreation, "chmod", path, err)
		report(onError, opErr)
		return nil, opErr
	}
	return &SocketEndpoint{path: path, ln: ln}, nil
}

func (e *SocketEndpoint) Name() string {
	return e.path
}

func (e *SocketEndpoint) Accept(onError ErrorCallback) (Connection, error) {
	conn, err := e.ln.AcceptUnix()
	if err != nil {
		if e.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, newOpError(ErrAccept, "accept", e.path, fmt.Errorf("%w: %w", ErrClosed, err))
		}
		opErr := newOpError(ErrAccept, "accept", e.path, err)
		report(onError, opErr)
		return nil, opErr
	}
	return newStream(conn), nil
}

// Unlink removes the socket file. Connections already accepted are not
// affected; new clients can no longer find the endpoint.
func (e *SocketEndpoint) Unlink(onError ErrorCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unlinked {
		return
	}
	e.unlinked = true
	if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		report(onError, newOpError(ErrUnlink, "unlink", e.path, err))
	}
}

func (e *SocketEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.Unlink(nil)
		e.closeErr = e.ln.Close()
	})
	return e.closeErr
}

// Dial connects to the endpoint named name.
func Dial(ctx context.Context, name string) (*Stream, error) {
	path := ResolveName(name)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, newOpError(ErrDial, "dial", path, err)
	}
	return newStream(conn), nil
}
