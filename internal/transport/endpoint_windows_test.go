//go:build windows

package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/diagipc/internal/ipc"
	"github.com/danmuck/diagipc/internal/testutil/testlog"
	"github.com/google/uuid"
)

func newTestPipe(t *testing.T) *PipeEndpoint {
	t.Helper()
	ep, err := NewPipeEndpoint(ResolveName(fmt.Sprintf("dipc-test-%s", uuid.NewString())), nil)
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	t.Cleanup(func() { _ = ep.Close() })
	return ep
}

func TestPipeEndpointScenario(t *testing.T) {
	testlog.Start(t)
	ep := newTestPipe(t)
	conns, errs := acceptAsync(ep)
	client := dialTest(t, ep.Name())
	server := waitConn(t, conns, errs)

	wire := ipc.EncodeHeader(ipc.Header{Magic: ipc.Magic, Size: 24, CommandSet: 1, Command: 5})
	wire = append(wire, 0x01, 0x02, 0x03, 0x04)
	if _, err := client.Write(wire); err != nil {
		t.Fatalf("client write: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("client flush: %v", err)
	}

	msg, err := ipc.ReadMessage(server)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.CommandSet() != 1 || msg.Command() != 5 {
		t.Fatalf("unexpected header: %s", msg.Header())
	}
	if !bytes.Equal(msg.Payload(), []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("payload=% x", msg.Payload())
	}
}

func TestPipeEndpointServesFreshInstances(t *testing.T) {
	testlog.Start(t)
	ep := newTestPipe(t)
	for i := 0; i < 2; i++ {
		conns, errs := acceptAsync(ep)
		client := dialTest(t, ep.Name())
		server := waitConn(t, conns, errs)
		if _, err := client.Write([]byte{byte(i)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if err := client.Flush(); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
		buf := make([]byte, 1)
		if _, err := server.Read(buf); err != nil || buf[0] != byte(i) {
			t.Fatalf("read %d: %v %v", i, buf, err)
		}
	}
}

func TestPipeEndpointNameTooLong(t *testing.T) {
	testlog.Start(t)
	var rec callbackRecorder
	_, err := NewPipeEndpoint(pipePrefix+strings.Repeat("p", MaxPipeNameLength), rec.record)
	if !errors.Is(err, ErrCreation) || !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("expected creation/name-too-long, got %v", err)
	}
	if len(rec.codes) != 1 || rec.codes[0] == 0 {
		t.Fatalf("expected one callback with a platform code, got %v", rec.codes)
	}
}

func TestPipeEndpointUnlinkIsNoop(t *testing.T) {
	testlog.Start(t)
	ep := newTestPipe(t)
	var rec callbackRecorder
	ep.Unlink(rec.record)
	ep.Unlink(rec.record)
	if len(rec.messages) != 0 {
		t.Fatalf("unexpected callbacks: %v", rec.messages)
	}
	conns, errs := acceptAsync(ep)
	dialTest(t, ep.Name())
	waitConn(t, conns, errs)

	if err := ep.Close(); err != nil {
		t.Fatalf("close after unlink: %v", err)
	}
	ep.Unlink(rec.record)
	if len(rec.messages) != 0 {
		t.Fatalf("unexpected callbacks after close: %v", rec.messages)
	}
}

func TestPipeCloseUnblocksAccept(t *testing.T) {
	testlog.Start(t)
	ep := newTestPipe(t)
	_, errs := acceptAsync(ep)
	time.Sleep(20 * time.Millisecond)
	if err := ep.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("accept not unblocked")
	}
}
