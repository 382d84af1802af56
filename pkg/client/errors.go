package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/services/codec"
)

// ErrorKind categorizes why an exchange failed
type ErrorKind int

const (
	// ProtocolParseError: malformed status line, headers or chunk framing
	ProtocolParseError ErrorKind = iota
	// TransportError: I/O failure on the underlying stream
	TransportError
	// TimeoutError: the exchange deadline passed before a terminal state
	TimeoutError
	// ListenerAckFailure: the application failed a content callback
	ListenerAckFailure
	// DestinationUnavailable: the destination's circuit breaker is open
	DestinationUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolParseError:
		return "protocol_parse_error"
	case TransportError:
		return "transport_error"
	case TimeoutError:
		return "timeout_error"
	case ListenerAckFailure:
		return "listener_ack_failure"
	case DestinationUnavailable:
		return "destination_unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

var (
	ErrClientStopped   = errors.New("client is not running")
	ErrClientStarted   = errors.New("client already started")
	ErrExchangeAborted = errors.New("exchange aborted")
)

// ExchangeError is the single failure cause carried by a failed Result
type ExchangeError struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	ExchangeID string
}

func (e *ExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

func newProtocolError(exchangeID string, cause error) *ExchangeError {
	return &ExchangeError{
		Kind:       ProtocolParseError,
		Message:    "malformed response",
		Cause:      cause,
		ExchangeID: exchangeID,
	}
}

func newTransportError(exchangeID, message string, cause error) *ExchangeError {
	return &ExchangeError{
		Kind:       TransportError,
		Message:    message,
		Cause:      cause,
		ExchangeID: exchangeID,
	}
}

func newTimeoutError(exchangeID string, timeout time.Duration) *ExchangeError {
	return &ExchangeError{
		Kind:       TimeoutError,
		Message:    fmt.Sprintf("exchange timed out after %v", timeout),
		ExchangeID: exchangeID,
	}
}

func newAckFailure(exchangeID string, cause error) *ExchangeError {
	return &ExchangeError{
		Kind:       ListenerAckFailure,
		Message:    "content listener failed",
		Cause:      cause,
		ExchangeID: exchangeID,
	}
}

func newUnavailableError(exchangeID, destination string) *ExchangeError {
	return &ExchangeError{
		Kind:       DestinationUnavailable,
		Message:    fmt.Sprintf("destination %s unavailable (circuit breaker open)", destination),
		ExchangeID: exchangeID,
	}
}

// classifyParseError maps a codec error to the failure kind it represents.
// A peer closing the stream is a transport failure; anything else is framing.
func classifyParseError(exchangeID string, err error) *ExchangeError {
	if codec.IsEOFError(err) {
		return newTransportError(exchangeID, "connection closed by peer", err)
	}
	return newProtocolError(exchangeID, err)
}

// KindOf returns the failure kind of err if it is an ExchangeError
func KindOf(err error) (ErrorKind, bool) {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Kind, true
	}
	return 0, false
}

func isKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsProtocolError checks if err is a ProtocolParseError
func IsProtocolError(err error) bool { return isKind(err, ProtocolParseError) }

// IsTransportError checks if err is a TransportError
func IsTransportError(err error) bool { return isKind(err, TransportError) }

// IsTimeout checks if err is a TimeoutError
func IsTimeout(err error) bool { return isKind(err, TimeoutError) }

// IsListenerAckFailure checks if err is a ListenerAckFailure
func IsListenerAckFailure(err error) bool { return isKind(err, ListenerAckFailure) }

// IsDestinationUnavailable checks if err is a DestinationUnavailable failure
func IsDestinationUnavailable(err error) bool { return isKind(err, DestinationUnavailable) }
