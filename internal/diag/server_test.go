//go:build unix

package diag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/diagipc/internal/ipc"
	"github.com/danmuck/diagipc/internal/testutil/testlog"
	"github.com/danmuck/diagipc/internal/transport"
	"github.com/google/uuid"
)

type harness struct {
	server *Server
	name   string
	done   chan error
	cancel context.CancelFunc
}

func startServer(t *testing.T, setup func(*Server)) *harness {
	t.Helper()
	dir, err := os.MkdirTemp("", "diag")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	ep, err := transport.NewSocketEndpoint(filepath.Join(dir, "s"), nil)
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	cfg := DefaultConfig()
	cfg.SessionReadTimeout = 5 * time.Second
	srv := NewServer(ep, cfg)
	if setup != nil {
		setup(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{server: srv, name: ep.Name(), done: make(chan error, 1), cancel: cancel}
	go func() { h.done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) *transport.Stream {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, h.name)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *transport.Stream, set CommandSet, cmd uint8) {
	t.Helper()
	msg, err := ipc.Encode(ipc.NewHeader(uint8(set), cmd), ipc.Empty{}, ipc.Custom[ipc.Empty]())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ipc.WriteMessage(conn, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectError(t *testing.T, conn *transport.Stream, want uint32) {
	t.Helper()
	reply, err := ipc.ReadMessage(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	code, err := ParseError(reply)
	if err != nil {
		t.Fatalf("parse error reply: %v", err)
	}
	if code != want {
		t.Fatalf("code=0x%08x want=0x%08x", code, want)
	}
}

func expectClosed(t *testing.T, conn *transport.Stream) {
	t.Helper()
	if _, err := ipc.ReadMessage(conn); !errors.Is(err, io.EOF) {
		t.Fatalf("expected session close, got %v", err)
	}
}

func TestServerProcessInfo(t *testing.T) {
	testlog.Start(t)
	info := CurrentProcessInfo(uuid.New())
	h := startServer(t, func(s *Server) {
		s.Handle(CommandSetProcess, ProcessCommandInfo, ProcessInfoHandler(info))
	})
	conn := h.dial(t)

	send(t, conn, CommandSetProcess, ProcessCommandInfo)
	reply, err := ipc.ReadMessage(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !IsOK(reply) {
		t.Fatalf("expected OK, got %s", reply.Header())
	}
	got, err := ipc.ExtractPayload(reply, ProcessInfoCodec)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != info {
		t.Fatalf("got=%+v want=%+v", got, info)
	}

	// The session stays open for further requests.
	send(t, conn, CommandSetProcess, ProcessCommandInfo)
	if _, err := ipc.ReadMessage(conn); err != nil {
		t.Fatalf("second request: %v", err)
	}
}

func TestServerUnknownCommand(t *testing.T) {
	testlog.Start(t)
	h := startServer(t, nil)
	conn := h.dial(t)

	send(t, conn, CommandSetDump, 0x01)
	expectError(t, conn, CodeUnknownCommand)
	expectClosed(t, conn)
}

func TestServerRejectsBadMagic(t *testing.T) {
	testlog.Start(t)
	h := startServer(t, nil)
	conn := h.dial(t)

	head := ipc.Header{Size: ipc.HeaderSize, CommandSet: uint8(CommandSetProcess)}
	copy(head.Magic[:], "NOT_THE_MAGIC")
	if _, err := conn.Write(ipc.EncodeHeader(head)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	expectError(t, conn, CodeUnknownMagic)
	expectClosed(t, conn)
}

func TestServerHandlerMalformedPayload(t *testing.T) {
	testlog.Start(t)
	h := startServer(t, func(s *Server) {
		s.Handle(CommandSetEventPipe, 0x01, func(_ *Session, msg ipc.Message) error {
			_, err := ipc.ExtractPayload(msg, ipc.Fixed[uint64]())
			return err
		})
	})
	conn := h.dial(t)

	send(t, conn, CommandSetEventPipe, 0x01)
	expectError(t, conn, CodeBadEncoding)
}

func TestServerHandlerFailure(t *testing.T) {
	testlog.Start(t)
	h := startServer(t, func(s *Server) {
		s.Handle(CommandSetDump, 0x01, func(*Session, ipc.Message) error {
			return fmt.Errorf("dump: disk full")
		})
	})
	conn := h.dial(t)

	send(t, conn, CommandSetDump, 0x01)
	expectError(t, conn, CodeFail)
}

func TestServerKeepsAcceptingAfterFailedSession(t *testing.T) {
	testlog.Start(t)
	var accepted atomic.Int32
	h := startServer(t, func(s *Server) {
		s.OnAccept(func(*Session) { accepted.Add(1) })
		s.Handle(CommandSetProcess, ProcessCommandInfo, ProcessInfoHandler(CurrentProcessInfo(uuid.New())))
	})

	bad := h.dial(t)
	_, _ = bad.Write([]byte{0xde, 0xad})
	_ = bad.Flush()
	_ = bad.Close()

	good := h.dial(t)
	send(t, good, CommandSetProcess, ProcessCommandInfo)
	reply, err := ipc.ReadMessage(good)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !IsOK(reply) {
		t.Fatalf("expected OK, got %s", reply.Header())
	}
	if n := accepted.Load(); n != 2 {
		t.Fatalf("accepted=%d", n)
	}
}

func TestServerSessionsListing(t *testing.T) {
	testlog.Start(t)
	ready := make(chan struct{}, 1)
	h := startServer(t, func(s *Server) {
		s.OnAccept(func(*Session) { ready <- struct{}{} })
	})
	_ = h.dial(t)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("session not accepted")
	}
	sessions := h.server.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions=%d", len(sessions))
	}
	if _, err := uuid.Parse(sessions[0].ID); err != nil {
		t.Fatalf("session id %q: %v", sessions[0].ID, err)
	}
}

func TestServeStopsOnCancelAndUnlinks(t *testing.T) {
	testlog.Start(t)
	ready := make(chan struct{}, 1)
	h := startServer(t, func(s *Server) {
		s.OnAccept(func(*Session) { ready <- struct{}{} })
	})
	conn := h.dial(t)
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("session not accepted")
	}

	h.cancel()
	select {
	case err := <-h.done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("serve returned %v", err)
		}
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
	if _, err := os.Stat(h.name); !os.IsNotExist(err) {
		t.Fatalf("endpoint not unlinked: %v", err)
	}
	expectClosed(t, conn)
}

func TestHandleRejectsNil(t *testing.T) {
	testlog.Start(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	h := startServer(t, nil)
	h.server.Handle(CommandSetDump, 0x01, nil)
}
