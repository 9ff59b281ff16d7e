package diag

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/diagipc/internal/ipc"
	"github.com/danmuck/diagipc/internal/observability"
	"github.com/danmuck/diagipc/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is one accepted Connection. It is owned by the goroutine serving
// it; Send may be called from a handler on that goroutine or from one other
// writer goroutine.
type Session struct {
	ID      uuid.UUID
	Started time.Time

	ctx    context.Context
	cancel context.CancelFunc
	conn   transport.Connection
	logger zerolog.Logger

	writeMu  sync.Mutex
	received atomic.Uint64
	sent     atomic.Uint64

	closeOnce sync.Once
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Received uint64    `json:"received"`
	Sent     uint64    `json:"sent"`
}

func newSession(parent context.Context, conn transport.Connection, logger zerolog.Logger) *Session {
	id := uuid.New()
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:      id,
		Started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		conn:    conn,
		logger:  logger.With().Str("session", id.String()).Logger(),
	}
}

// Context is cancelled when the session ends or the server shuts down.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Logger() *zerolog.Logger {
	return &s.logger
}

// Conn exposes the underlying connection for handlers that stream.
func (s *Session) Conn() transport.Connection {
	return s.conn
}

// Send writes and flushes one message.
func (s *Session) Send(msg ipc.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := ipc.WriteMessage(s.conn, msg); err != nil {
		return err
	}
	s.sent.Add(1)
	observability.RecordMessage("out", CommandSet(msg.CommandSet()).String())
	return nil
}

// SendError writes a Server/Error reply.
func (s *Session) SendError(code uint32) error {
	reply, err := ErrorReply(code)
	if err != nil {
		return err
	}
	return s.Send(reply)
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:       s.ID.String(),
		Started:  s.Started,
		Received: s.received.Load(),
		Sent:     s.sent.Load(),
	}
}

func (s *Session) read(timeout time.Duration) (ipc.Message, error) {
	if timeout > 0 {
		if d, ok := s.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = d.SetReadDeadline(time.Now().Add(timeout))
		}
	}
	msg, err := ipc.ReadMessage(s.conn)
	if err != nil {
		return ipc.Message{}, err
	}
	s.received.Add(1)
	observability.RecordMessage("in", CommandSet(msg.CommandSet()).String())
	return msg, nil
}

// Close ends the session and releases its connection once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
	})
	return err
}
