package client

import (
	"sync/atomic"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// ExchangeState is the position of an exchange in its lifecycle. States only
// move forward; StateComplete and StateFailed are terminal.
type ExchangeState int32

const (
	StateDispatched ExchangeState = iota
	StateHeadersReceived
	StateStreaming
	StateComplete
	StateFailed
)

func (s ExchangeState) String() string {
	switch s {
	case StateDispatched:
		return "DISPATCHED"
	case StateHeadersReceived:
		return "HEADERS_RECEIVED"
	case StateStreaming:
		return "STREAMING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s ExchangeState) terminal() bool {
	return s == StateComplete || s == StateFailed
}

// exchange is one request/response cycle. Its state is shared between the
// processing task of its connection and the timeout timer.
type exchange struct {
	id       string
	req      *Request
	resp     *Response
	listener CompleteListener

	state     atomic.Int32
	delivered atomic.Bool
	conn      atomic.Pointer[connection]
	timer     atomic.Pointer[time.Timer]
	timeout   time.Duration
	deadline  time.Time
	started   time.Time

	reused    atomic.Bool
	fragments atomic.Int64
}

func newExchange(req *Request, listener CompleteListener, timeout time.Duration) *exchange {
	now := time.Now()
	return &exchange{
		id:       uuid.NewString(),
		req:      req,
		resp:     newResponse(),
		listener: listener,
		timeout:  timeout,
		deadline: now.Add(timeout),
		started:  now,
	}
}

// State returns the current state
func (ex *exchange) State() ExchangeState {
	return ExchangeState(ex.state.Load())
}

func (ex *exchange) isTerminal() bool {
	return ex.State().terminal()
}

// advance moves the exchange forward to a non-terminal state. It never moves
// backwards and never leaves a terminal state.
func (ex *exchange) advance(to ExchangeState) bool {
	for {
		cur := ExchangeState(ex.state.Load())
		if cur.terminal() || cur >= to {
			return false
		}
		if ex.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// terminate moves the exchange to a terminal state. Exactly one caller wins;
// it gets the state the exchange was in before.
func (ex *exchange) terminate(to ExchangeState) (ExchangeState, bool) {
	for {
		cur := ExchangeState(ex.state.Load())
		if cur.terminal() {
			return cur, false
		}
		if ex.state.CompareAndSwap(int32(cur), int32(to)) {
			if t := ex.timer.Load(); t != nil {
				t.Stop()
			}
			return cur, true
		}
	}
}

// arm starts the exchange deadline
func (ex *exchange) arm(onExpire func()) {
	ex.timer.Store(time.AfterFunc(ex.timeout, onExpire))
}

// deliver hands the result to the completion listener at most once. A
// listener that panics still counts as delivered.
func (ex *exchange) deliver(res Result) (ok bool) {
	if !ex.delivered.CompareAndSwap(false, true) {
		return false
	}
	ok = true
	if ex.listener == nil {
		return ok
	}
	defer func() {
		if r := recover(); r != nil {
			fiberlog.Errorf("[%s] Complete listener panicked: %v", ex.id, r)
		}
	}()
	ex.listener(res)
	return ok
}
