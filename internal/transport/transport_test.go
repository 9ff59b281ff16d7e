package transport

import (
	"context"
	"testing"
	"time"
)

type callbackRecorder struct {
	messages []string
	codes    []uint32
}

func (r *callbackRecorder) record(message string, code uint32) {
	r.messages = append(r.messages, message)
	r.codes = append(r.codes, code)
}

func acceptAsync(ep Endpoint) (<-chan Connection, <-chan error) {
	conns := make(chan Connection, 1)
	errs := make(chan error, 1)
	go func() {
		conn, err := ep.Accept(nil)
		if err != nil {
			errs <- err
			return
		}
		conns <- conn
	}()
	return conns, errs
}

func waitConn(t *testing.T, conns <-chan Connection, errs <-chan error) Connection {
	t.Helper()
	select {
	case conn := <-conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case err := <-errs:
		t.Fatalf("accept: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("accept timed out")
	}
	return nil
}

func dialTest(t *testing.T, name string) *Stream {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, name)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
