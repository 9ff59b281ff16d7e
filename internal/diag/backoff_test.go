package diag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/diagipc/internal/testutil/testlog"
	"github.com/danmuck/diagipc/internal/transport"
)

func TestAcceptBackoffGrowsCapsAndResets(t *testing.T) {
	testlog.Start(t)
	b := newAcceptBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		Multiplier:   3,
		MaxDelay:     50 * time.Millisecond,
	}, 1)

	want := []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := b.next(); got != w {
			t.Fatalf("failure %d: delay=%v want=%v", i+1, got, w)
		}
	}
	if b.failed() != len(want) {
		t.Fatalf("failed=%d", b.failed())
	}

	b.reset()
	if b.failed() != 0 {
		t.Fatalf("reset kept %d failures", b.failed())
	}
	if got := b.next(); got != 10*time.Millisecond {
		t.Fatalf("after reset delay=%v", got)
	}
}

func TestAcceptBackoffJitterStaysInBand(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig().AcceptBackoff
	b := newAcceptBackoff(cfg, 7)
	for i := 0; i < 20; i++ {
		got := b.next()
		if got < b.current/2 || got >= b.current*3/2 {
			t.Fatalf("failure %d: delay=%v outside band around %v", i+1, got, b.current)
		}
	}
	if b.current != cfg.MaxDelay {
		t.Fatalf("expected cap %v, got %v", cfg.MaxDelay, b.current)
	}
}

func TestAcceptBackoffSubUnitMultiplierHolds(t *testing.T) {
	testlog.Start(t)
	b := newAcceptBackoff(BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 0.5}, 1)
	for i := 0; i < 3; i++ {
		if got := b.next(); got != 20*time.Millisecond {
			t.Fatalf("failure %d: delay=%v", i+1, got)
		}
	}
}

// eofConn is an accepted connection whose peer has already hung up.
type eofConn struct{}

func (eofConn) Read([]byte) (int, error)    { return 0, io.EOF }
func (eofConn) Write(p []byte) (int, error) { return len(p), nil }
func (eofConn) Flush() error                { return nil }
func (eofConn) Close() error                { return nil }

// scriptedEndpoint replays a fixed series of accept results, then blocks
// until closed.
type scriptedEndpoint struct {
	mu      sync.Mutex
	steps   []error
	closed  chan struct{}
	drained chan struct{}
	once    sync.Once
	close   sync.Once
}

func newScriptedEndpoint(steps ...error) *scriptedEndpoint {
	return &scriptedEndpoint{steps: steps, closed: make(chan struct{}), drained: make(chan struct{})}
}

func (e *scriptedEndpoint) Name() string { return "scripted" }

func (e *scriptedEndpoint) Accept(onError transport.ErrorCallback) (transport.Connection, error) {
	e.mu.Lock()
	if len(e.steps) > 0 {
		step := e.steps[0]
		e.steps = e.steps[1:]
		e.mu.Unlock()
		if step != nil {
			if onError != nil {
				onError(step.Error(), 24)
			}
			return nil, step
		}
		return eofConn{}, nil
	}
	e.mu.Unlock()
	e.once.Do(func() { close(e.drained) })
	<-e.closed
	return nil, fmt.Errorf("accept scripted: %w", transport.ErrClosed)
}

func (e *scriptedEndpoint) Unlink(transport.ErrorCallback) {}

func (e *scriptedEndpoint) Close() error {
	e.close.Do(func() { close(e.closed) })
	return nil
}

func TestServeBacksOffOnAcceptFailuresAndResetsOnSuccess(t *testing.T) {
	testlog.Start(t)
	emfile := errors.New("accept: too many open files")
	ep := newScriptedEndpoint(emfile, emfile, emfile, nil, emfile)

	cfg := DefaultConfig()
	cfg.AcceptBackoff = BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     30 * time.Millisecond,
	}
	srv := NewServer(ep, cfg)
	var delays []time.Duration
	srv.after = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	accepted := make(chan struct{}, 1)
	srv.OnAccept(func(*Session) { accepted <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-ep.drained:
	case <-time.After(5 * time.Second):
		t.Fatalf("accept script not consumed")
	}
	select {
	case <-accepted:
	default:
		t.Fatalf("successful accept did not start a session")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 10 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays=%v want=%v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays=%v want=%v", delays, want)
		}
	}
}
