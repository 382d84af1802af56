package contracts

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Outcome says how a relay ended
type Outcome int

const (
	// Expected outcomes, logged below warning level
	Drained      Outcome = iota // upstream body relayed to its end
	Disconnected                // caller went away

	// Failures
	UpstreamFailed // exchange failed after its headers were relayed
	WriteFailed    // downstream write failed for a reason other than a disconnect
)

func (o Outcome) String() string {
	switch o {
	case Drained:
		return "drained"
	case Disconnected:
		return "disconnected"
	case UpstreamFailed:
		return "upstream_failed"
	case WriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// RelayError ends every relay, including successful ones
type RelayError struct {
	Outcome     Outcome
	RequestID   string
	Destination string
	Relayed     int64 // body bytes written downstream before the end
	Cause       error
}

func (e *RelayError) Error() string {
	msg := "relay " + e.Outcome.String()
	if e.Destination != "" {
		msg += " from " + e.Destination
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s after %d bytes: %v", msg, e.Relayed, e.Cause)
	}
	return fmt.Sprintf("%s after %d bytes", msg, e.Relayed)
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Expected reports outcomes that are not failures of the gateway
func (e *RelayError) Expected() bool {
	return e.Outcome == Drained || e.Outcome == Disconnected
}

func NewDrained(requestID, destination string, relayed int64) *RelayError {
	return &RelayError{Outcome: Drained, RequestID: requestID, Destination: destination, Relayed: relayed}
}

func NewDisconnected(requestID string, relayed int64) *RelayError {
	return &RelayError{Outcome: Disconnected, RequestID: requestID, Relayed: relayed}
}

func NewUpstreamFailed(requestID, destination string, relayed int64, cause error) *RelayError {
	return &RelayError{
		Outcome:     UpstreamFailed,
		RequestID:   requestID,
		Destination: destination,
		Relayed:     relayed,
		Cause:       cause,
	}
}

func NewWriteFailed(requestID string, relayed int64, cause error) *RelayError {
	return &RelayError{Outcome: WriteFailed, RequestID: requestID, Relayed: relayed, Cause: cause}
}

// OutcomeOf extracts the relay outcome carried by err
func OutcomeOf(err error) (Outcome, bool) {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Outcome, true
	}
	return 0, false
}

// IsDisconnected reports whether err ended a relay because the caller left
func IsDisconnected(err error) bool {
	outcome, ok := OutcomeOf(err)
	return ok && outcome == Disconnected
}

// IsExpected reports whether err is an expected relay outcome
func IsExpected(err error) bool {
	var relayErr *RelayError
	return errors.As(err, &relayErr) && relayErr.Expected()
}

// IsConnectionClosed reports whether a write error means the peer is gone
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	// fasthttp and bufio sometimes flatten the cause into text
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "use of closed network connection")
}
