package contracts

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestRelayErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name         string
		err          error
		outcome      Outcome
		disconnected bool
		expected     bool
	}{
		{"drained", NewDrained("r1", "http://a:80", 12), Drained, false, true},
		{"disconnected", NewDisconnected("r1", 3), Disconnected, true, true},
		{"upstream", NewUpstreamFailed("r1", "http://a:80", 5, cause), UpstreamFailed, false, false},
		{"write", NewWriteFailed("r1", 0, cause), WriteFailed, false, false},
		{"wrapped disconnect", fmt.Errorf("fetch: %w", NewDisconnected("r1", 0)), Disconnected, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, ok := OutcomeOf(tt.err)
			if !ok || outcome != tt.outcome {
				t.Errorf("OutcomeOf = %v, %v; want %v", outcome, ok, tt.outcome)
			}
			if got := IsDisconnected(tt.err); got != tt.disconnected {
				t.Errorf("IsDisconnected = %v, want %v", got, tt.disconnected)
			}
			if got := IsExpected(tt.err); got != tt.expected {
				t.Errorf("IsExpected = %v, want %v", got, tt.expected)
			}
		})
	}

	if _, ok := OutcomeOf(cause); ok || IsExpected(cause) || IsDisconnected(cause) {
		t.Error("plain error classified as a relay outcome")
	}
}

func TestRelayErrorMessage(t *testing.T) {
	cause := errors.New("bad chunk")
	err := NewUpstreamFailed("r1", "http://a:80", 5, cause)
	if !errors.Is(err, cause) {
		t.Error("upstream failure does not unwrap to its cause")
	}
	if msg := err.Error(); !strings.Contains(msg, "upstream_failed from http://a:80 after 5 bytes: bad chunk") {
		t.Errorf("Error() = %q", msg)
	}
	if msg := NewDisconnected("r1", 0).Error(); msg != "relay disconnected after 0 bytes" {
		t.Errorf("Error() = %q", msg)
	}
}

func TestIsConnectionClosed(t *testing.T) {
	closed := []error{
		net.ErrClosed,
		io.ErrClosedPipe,
		fmt.Errorf("write tcp: %w", syscall.EPIPE),
		&net.OpError{Op: "read", Err: syscall.ECONNRESET},
		errors.New("write: broken pipe"),
	}
	for _, err := range closed {
		if !IsConnectionClosed(err) {
			t.Errorf("IsConnectionClosed(%v) = false", err)
		}
	}
	if IsConnectionClosed(nil) || IsConnectionClosed(errors.New("disk full")) {
		t.Error("unrelated error treated as closed connection")
	}
}
