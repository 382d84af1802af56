package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/internal/services/stream/contracts"
	"github.com/Egham-7/adaptive-h1/pkg/client"
)

type recordingWriter struct {
	mu      sync.Mutex
	data    strings.Builder
	flushes int
	failOn  int // fail the nth write, 0 never
	writes  int
}

func (w *recordingWriter) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failOn > 0 && w.writes == w.failOn {
		return contracts.NewDisconnected("test", 0)
	}
	w.data.Write(p)
	return nil
}

func (w *recordingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return nil
}

func (w *recordingWriter) Close() error { return nil }

// serveOnce answers the first request on a fresh listener with response
func serveOnce(t *testing.T, response string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		_, _ = conn.Write([]byte(response))
		_, _ = r.ReadByte() // hold the connection until the client closes it
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func startClient(t *testing.T) *client.Client {
	t.Helper()
	c := client.New(models.ClientConfig{RequestTimeoutMs: 5000})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func TestRelayStreamsChunkedBody(t *testing.T) {
	port := serveOnce(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nX-Up: 1\r\n\r\n5\r\nhello\r\n7\r\n, world\r\n0\r\n\r\n")
	c := startClient(t)

	req := c.NewRequest("127.0.0.1", port)
	relay := NewRelay("r1", req.Destination())
	relay.Attach(req).Send(relay.OnComplete)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, failure, err := relay.AwaitHeaders(ctx)
	if err != nil || failure != nil {
		t.Fatalf("AwaitHeaders = %v, %v", failure, err)
	}
	if resp.Status != 200 || resp.Headers.Get("X-Up") != "1" {
		t.Fatalf("headers = %d %v", resp.Status, resp.Headers)
	}

	w := &recordingWriter{}
	err = relay.Stream(ctx, w)
	if outcome, ok := contracts.OutcomeOf(err); !ok || outcome != contracts.Drained {
		t.Fatalf("Stream err = %v, want drained", err)
	}
	if relay.Relayed() != 12 {
		t.Errorf("Relayed = %d, want 12", relay.Relayed())
	}
	if w.data.String() != "hello, world" {
		t.Errorf("relayed %q", w.data.String())
	}
	if w.flushes < 1 {
		t.Errorf("flushes = %d", w.flushes)
	}
}

func TestRelayWriteFailureFailsExchange(t *testing.T) {
	port := serveOnce(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n")
	c := startClient(t)

	req := c.NewRequest("127.0.0.1", port)
	relay := NewRelay("r2", req.Destination())

	results := make(chan client.Result, 1)
	relay.Attach(req).Send(func(res client.Result) {
		results <- res
		relay.OnComplete(res)
	})

	ctx := context.Background()
	if _, failure, err := relay.AwaitHeaders(ctx); failure != nil || err != nil {
		t.Fatalf("AwaitHeaders = %v, %v", failure, err)
	}

	err := relay.Stream(ctx, &recordingWriter{failOn: 1})
	if !contracts.IsDisconnected(err) {
		t.Fatalf("Stream err = %v, want disconnected", err)
	}

	select {
	case res := <-results:
		if !client.IsListenerAckFailure(res.Failure) {
			t.Errorf("exchange failure = %v, want listener ack failure", res.Failure)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not fail after the downstream write failed")
	}
}

func TestRelayFailureBeforeHeaders(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c := startClient(t)
	req := c.NewRequest("127.0.0.1", port)
	relay := NewRelay("r3", req.Destination())
	relay.Attach(req).Send(relay.OnComplete)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, failure, err := relay.AwaitHeaders(ctx)
	if err != nil {
		t.Fatalf("AwaitHeaders err = %v", err)
	}
	if resp != nil || !client.IsTransportError(failure) {
		t.Errorf("AwaitHeaders = %v, %v; want transport failure", resp, failure)
	}
}

func TestRelayUpstreamFailureMidBody(t *testing.T) {
	port := serveOnce(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhelloXX")
	c := startClient(t)

	req := c.NewRequest("127.0.0.1", port)
	relay := NewRelay("r4", req.Destination())
	relay.Attach(req).Send(relay.OnComplete)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, failure, err := relay.AwaitHeaders(ctx); failure != nil || err != nil {
		t.Fatalf("AwaitHeaders = %v, %v", failure, err)
	}

	w := &recordingWriter{}
	err := relay.Stream(ctx, w)
	var relayErr *contracts.RelayError
	if !errors.As(err, &relayErr) || relayErr.Outcome != contracts.UpstreamFailed {
		t.Fatalf("Stream err = %v, want upstream failure", err)
	}
	if relayErr.Relayed != 5 {
		t.Errorf("Relayed = %d before failure, want 5", relayErr.Relayed)
	}
	if !client.IsProtocolError(err) {
		t.Errorf("cause = %v, want protocol error", err)
	}
	if w.data.String() != "hello" {
		t.Errorf("relayed %q before failure", w.data.String())
	}
}
