package writers

import (
	"bufio"
	"bytes"
	"errors"
	"syscall"
	"testing"

	"github.com/Egham-7/adaptive-h1/internal/services/stream/contracts"
)

type fakeDownstream bool

func (d fakeDownstream) Connected() bool { return bool(d) }

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestFlushWriterRelaysBytes(t *testing.T) {
	var out bytes.Buffer
	w := NewFlushWriter(bufio.NewWriter(&out), fakeDownstream(true), "r1")

	for _, part := range []string{"hello, ", "", "world"} {
		if err := w.Write([]byte(part)); err != nil {
			t.Fatalf("Write(%q): %v", part, err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if out.String() != "hello, world" {
		t.Errorf("output = %q", out.String())
	}
	if w.Written() != 12 || w.Flushes() != 3 {
		t.Errorf("Written = %d, Flushes = %d", w.Written(), w.Flushes())
	}
}

func TestFlushWriterDisconnected(t *testing.T) {
	var out bytes.Buffer
	w := NewFlushWriter(bufio.NewWriter(&out), fakeDownstream(false), "r1")

	if err := w.Write([]byte("x")); !contracts.IsDisconnected(err) {
		t.Errorf("Write err = %v, want disconnected", err)
	}
	if err := w.Flush(); !contracts.IsDisconnected(err) {
		t.Errorf("Flush err = %v, want disconnected", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close err = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("bytes reached a gone caller: %q", out.String())
	}
}

func TestFlushWriterClassifiesFlushErrors(t *testing.T) {
	broken := NewFlushWriter(bufio.NewWriterSize(failingWriter{syscall.EPIPE}, 16), fakeDownstream(true), "r1")
	_ = broken.Write([]byte("data"))
	if err := broken.Flush(); !contracts.IsDisconnected(err) {
		t.Errorf("broken pipe flush err = %v, want disconnected", err)
	}

	diskFull := errors.New("disk full")
	other := NewFlushWriter(bufio.NewWriterSize(failingWriter{diskFull}, 16), fakeDownstream(true), "r1")
	_ = other.Write([]byte("data"))
	err := other.Flush()
	if outcome, ok := contracts.OutcomeOf(err); !ok || outcome != contracts.WriteFailed || !errors.Is(err, diskFull) {
		t.Errorf("flush err = %v, want write failure wrapping the cause", err)
	}
}

func TestRequestCtxDownstreamNilContext(t *testing.T) {
	if NewRequestCtxDownstream(nil).Connected() {
		t.Error("nil context reported connected")
	}
}
