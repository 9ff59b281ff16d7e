package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"
)

const writeBufferSize = 16 * 1024

// Stream is the Connection produced by both endpoint variants and by Dial.
// It owns its net.Conn and closes it exactly once. One reader and one writer
// may use a Stream concurrently.
type Stream struct {
	conn net.Conn
	w    *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

var _ Connection = (*Stream)(nil)

func newStream(conn net.Conn) *Stream {
	return &Stream{
		conn: conn,
		w:    bufio.NewWriterSize(conn, writeBufferSize),
	}
}

// Read blocks until len(p) bytes have arrived. A short count is always
// accompanied by an error.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := io.ReadFull(s.conn, p)
	if err != nil {
		return n, newOpError(ErrIO, "read", "", err)
	}
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, newOpError(ErrIO, "write", "", err)
	}
	return n, nil
}

func (s *Stream) Flush() error {
	if err := s.w.Flush(); err != nil {
		return newOpError(ErrIO, "flush", "", err)
	}
	return nil
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// Close releases the underlying handle. Buffered but unflushed bytes are
// dropped.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
