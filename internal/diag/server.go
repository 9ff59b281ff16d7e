package diag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/diagipc/internal/ipc"
	"github.com/danmuck/diagipc/internal/observability"
	"github.com/danmuck/diagipc/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Handler serves one request on a session. Returning an error ends the
// session after an error reply; an error wrapping ipc.ErrPayloadMalformed is
// answered with CodeBadEncoding, anything else with CodeFail.
type Handler func(s *Session, msg ipc.Message) error

type commandKey struct {
	set CommandSet
	cmd uint8
}

// Server accepts diagnostic sessions on one Endpoint and dispatches their
// messages to registered handlers.
type Server struct {
	endpoint transport.Endpoint
	cfg      Config
	logger   zerolog.Logger

	mu       sync.RWMutex
	handlers map[commandKey]Handler
	onAccept func(*Session)
	sessions map[uuid.UUID]*Session

	acceptLog rate.Sometimes
	// after paces accept retries; tests replace it to observe delays.
	after     func(time.Duration) <-chan time.Time
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewServer(endpoint transport.Endpoint, cfg Config) *Server {
	return &Server{
		endpoint:  endpoint,
		cfg:       cfg,
		logger:    log.With().Str("component", "diag").Str("endpoint", endpoint.Name()).Logger(),
		handlers:  make(map[commandKey]Handler),
		sessions:  make(map[uuid.UUID]*Session),
		acceptLog: rate.Sometimes{First: 3, Interval: cfg.AcceptLogInterval},
		after:     time.After,
	}
}

// Handle registers h for the CommandSet/Command pair, replacing any earlier
// registration.
func (s *Server) Handle(set CommandSet, cmd uint8, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("diag: nil handler for %s/0x%02x", set, cmd))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[commandKey{set: set, cmd: cmd}] = h
}

// OnAccept sets the hook run for every accepted session before its first
// message is read.
func (s *Server) OnAccept(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAccept = fn
}

func (s *Server) Endpoint() transport.Endpoint {
	return s.endpoint
}

// Serve accepts sessions until ctx is done or Close is called. Accept
// failures are logged and retried with backoff.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.logger.Info().Msg("diagnostics server listening")
	backoff := newAcceptBackoff(s.cfg.AcceptBackoff, time.Now().UnixNano()^int64(os.Getpid()))
	for {
		conn, err := s.endpoint.Accept(s.reportAcceptError)
		if err != nil {
			if s.closed.Load() || errors.Is(err, transport.ErrClosed) {
				s.wg.Wait()
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return nil
			}
			observability.RecordAccept(s.endpoint.Name(), false)
			delay := backoff.next()
			s.logger.Debug().Int("failures", backoff.failed()).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-ctx.Done():
				_ = s.Close()
				s.wg.Wait()
				return ctx.Err()
			case <-s.after(delay):
			}
			continue
		}
		backoff.reset()
		observability.RecordAccept(s.endpoint.Name(), true)
		s.startSession(ctx, conn)
	}
}

func (s *Server) reportAcceptError(message string, code uint32) {
	s.acceptLog.Do(func() {
		s.logger.Warn().Uint32("code", code).Msg(message)
	})
}

func (s *Server) startSession(ctx context.Context, conn transport.Connection) {
	sess := newSession(ctx, conn, s.logger)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[sess.ID] = sess
	hook := s.onAccept
	s.wg.Add(1)
	s.mu.Unlock()

	observability.SessionOpened()
	sess.logger.Debug().Msg("session accepted")
	if hook != nil {
		hook(sess)
	}
	go s.serveSession(sess)
}

func (s *Server) serveSession(sess *Session) {
	defer s.wg.Done()
	defer func() {
		_ = sess.Close()
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		observability.SessionClosed(time.Since(sess.Started))
		sess.logger.Debug().Uint64("received", sess.received.Load()).Uint64("sent", sess.sent.Load()).Msg("session ended")
	}()

	for {
		msg, err := sess.read(s.cfg.SessionReadTimeout)
		if err != nil {
			s.rejectRead(sess, err)
			return
		}

		set, cmd := CommandSet(msg.CommandSet()), msg.Command()
		s.mu.RLock()
		h, ok := s.handlers[commandKey{set: set, cmd: cmd}]
		s.mu.RUnlock()
		if !ok {
			observability.RecordRejected("unknown_command")
			sess.logger.Warn().Str("command_set", set.String()).Uint8("command", cmd).Msg("unknown command")
			_ = sess.SendError(CodeUnknownCommand)
			return
		}

		if err := h(sess, msg); err != nil {
			code := CodeFail
			reason := "handler_error"
			if errors.Is(err, ipc.ErrPayloadMalformed) || errors.Is(err, ipc.ErrPayloadTooSmall) {
				code = CodeBadEncoding
				reason = "bad_encoding"
			}
			observability.RecordRejected(reason)
			sess.logger.Warn().Err(err).Str("command_set", set.String()).Uint8("command", cmd).Msg("handler failed")
			_ = sess.SendError(code)
			return
		}
	}
}

func (s *Server) rejectRead(sess *Session, err error) {
	switch {
	case errors.Is(err, ipc.ErrShortHeader) && errors.Is(err, io.EOF):
		sess.logger.Debug().Msg("peer closed session")
	case sess.ctx.Err() != nil:
		sess.logger.Debug().Msg("session cancelled")
	case errors.Is(err, ipc.ErrProtocolVersionMismatch):
		observability.RecordRejected("bad_magic")
		sess.logger.Warn().Err(err).Msg("rejecting session")
		_ = sess.SendError(CodeUnknownMagic)
	case errors.Is(err, ipc.ErrInvalidSize):
		observability.RecordRejected("invalid_size")
		sess.logger.Warn().Err(err).Msg("rejecting session")
		_ = sess.SendError(CodeBadEncoding)
	default:
		observability.RecordRejected("read_error")
		sess.logger.Warn().Err(err).Msg("session read failed")
	}
}

// Sessions lists open sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Close stops accepting, releases the endpoint and ends open sessions.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		open := make([]*Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			open = append(open, sess)
		}
		s.mu.Unlock()

		s.closeErr = s.endpoint.Close()
		for _, sess := range open {
			_ = sess.Close()
		}
		s.logger.Info().Msg("diagnostics server closed")
	})
	return s.closeErr
}
