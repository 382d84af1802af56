package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/services/codec"
	"github.com/Egham-7/adaptive-h1/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

type connState int

const (
	connIdle connState = iota
	connActive
	connClosed
)

func (s connState) String() string {
	switch s {
	case connIdle:
		return "IDLE"
	case connActive:
		return "ACTIVE"
	default:
		return "CLOSED"
	}
}

// flowState tracks the acknowledgment of the last delivered fragment
type flowState int

const (
	flowIdle       flowState = iota // no fragment outstanding
	flowDelivering                  // async listener is being invoked
	flowSuspended                   // listener returned without acknowledging
)

// connection owns one socket and one response parser. At most one processing
// task runs for it at a time: a task either parses, hands the socket to a
// reader goroutine, or parks the connection until a content callback fires.
type connection struct {
	id      string
	client  *Client
	bucket  *bucket
	netConn net.Conn

	// Owned by the processing task.
	buf         *bytebufferpool.ByteBuffer
	start, end  int
	readErr     error
	parser      *codec.ResponseParser
	ex          *exchange
	paused      bool
	listenerErr error
	served      int

	// Guarded by bucket.mu.
	state     connState
	idleSince time.Time

	// Content flow, shared with callbacks.
	mu     sync.Mutex
	flow   flowState
	ackGen uint64
	acked  bool
	ackErr error

	closeOnce sync.Once
}

func newConnection(client *Client, b *bucket, netConn net.Conn) *connection {
	c := &connection{
		id:      uuid.NewString()[:8],
		client:  client,
		bucket:  b,
		netConn: netConn,
		buf:     utils.GetSized(client.cfg.ReadBufferSize),
		state:   connActive,
	}
	c.parser = codec.NewResponseParser(c, client.limits)
	return c
}

// dispatch binds ex to the connection and writes the request. The caller
// owns the connection until it submits process.
func (c *connection) dispatch(ex *exchange) error {
	c.ex = ex
	c.served++
	c.start, c.end = 0, 0
	c.readErr = nil
	c.paused = false
	c.listenerErr = nil
	c.mu.Lock()
	c.flow = flowIdle
	c.acked = false
	c.ackErr = nil
	c.mu.Unlock()
	c.parser.Reset(ex.req.method == http.MethodHead)

	buf := utils.Get()
	defer utils.Put(buf)
	ex.req.writeTo(buf)

	if err := c.netConn.SetWriteDeadline(ex.deadline); err != nil {
		return err
	}
	_, err := c.netConn.Write(buf.B)
	return err
}

// process parses whatever is buffered and decides what the connection waits
// for next: more bytes, a content acknowledgment, or nothing because the
// exchange reached a terminal state.
func (c *connection) process() {
	for {
		ex := c.ex
		if ex == nil || ex.isTerminal() {
			return
		}
		if err := c.takeAckError(); err != nil {
			c.fail(ex, newAckFailure(ex.id, err))
			return
		}

		n, err := c.parser.Parse(c.buf.B[c.start:c.end])
		c.start += n
		if ex.isTerminal() {
			return
		}
		if err != nil {
			c.fail(ex, classifyParseError(ex.id, err))
			return
		}
		if c.listenerErr != nil {
			c.fail(ex, newAckFailure(ex.id, c.listenerErr))
			return
		}
		if c.paused {
			c.paused = false
			if err := c.takeAckError(); err != nil {
				c.fail(ex, newAckFailure(ex.id, err))
				return
			}
			if !c.awaitAck() {
				return
			}
			continue
		}
		if c.parser.IsComplete() {
			c.complete(ex)
			return
		}

		// Everything buffered was consumed without reaching end of message.
		if c.readErr != nil {
			c.onReadError(ex)
			return
		}
		c.start, c.end = 0, 0
		go c.fill()
		return
	}
}

// fill blocks on the socket off the worker pool, then resumes processing
func (c *connection) fill() {
	n, err := c.netConn.Read(c.buf.B[c.end:])
	c.end += n
	c.readErr = err
	c.client.submit(c.process)
}

func (c *connection) onReadError(ex *exchange) {
	if errors.Is(c.readErr, io.EOF) {
		if err := c.parser.ParseEOF(); err != nil {
			c.fail(ex, classifyParseError(ex.id, err))
			return
		}
		if c.listenerErr != nil {
			c.fail(ex, newAckFailure(ex.id, c.listenerErr))
			return
		}
		c.complete(ex)
		return
	}
	c.fail(ex, newTransportError(ex.id, "failed to read response", c.readErr))
}

// complete finishes ex after end of message. The connection goes back to the
// pool only when the response allows reuse and nothing follows it.
func (c *connection) complete(ex *exchange) {
	prev, ok := ex.terminate(StateComplete)
	if !ok {
		return
	}
	c.ex = nil

	switch {
	case c.start < c.end:
		fiberlog.Warnf("[%s] %d unexpected bytes after response, closing connection %s", ex.id, c.end-c.start, c.id)
		c.discard()
	case c.readErr != nil || !c.parser.Persistent():
		fiberlog.Debugf("[%s] Connection %s not reusable, closing", ex.id, c.id)
		c.discard()
	default:
		c.bucket.release(c)
	}

	c.client.finish(ex, prev, nil)
}

// fail finishes ex with failure and destroys the connection
func (c *connection) fail(ex *exchange, failure *ExchangeError) {
	prev, ok := ex.terminate(StateFailed)
	if !ok {
		return
	}
	c.ex = nil
	c.discard()
	c.client.finish(ex, prev, failure)
}

// discard removes the connection from its pool and recycles its buffer. Only
// the goroutine owning the connection may call it.
func (c *connection) discard() {
	c.bucket.discard(c)
	c.recycle()
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		if err := c.netConn.Close(); err != nil {
			fiberlog.Debugf("[POOL] Error closing connection %s: %v", c.id, err)
		}
	})
}

func (c *connection) recycle() {
	if c.buf != nil {
		utils.Put(c.buf)
		c.buf = nil
	}
}

// awaitAck reports whether the outstanding fragment was already acknowledged.
// Otherwise the connection parks until signal resubmits it.
func (c *connection) awaitAck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acked {
		c.acked = false
		c.flow = flowIdle
		return true
	}
	c.flow = flowSuspended
	return false
}

func (c *connection) takeAckError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ackErr
	c.ackErr = nil
	return err
}

// signal records the acknowledgment of fragment gen. An acknowledgment that
// arrives while the listener is still running is picked up by the processing
// task itself; one that arrives later schedules a new task.
func (c *connection) signal(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.ackGen {
		c.mu.Unlock()
		return
	}

	switch c.flow {
	case flowDelivering:
		c.acked = true
		c.ackErr = err
		c.mu.Unlock()
	case flowSuspended:
		c.flow = flowIdle
		c.ackErr = err
		c.mu.Unlock()
		c.client.submit(c.process)
	default:
		c.mu.Unlock()
	}
}

// invoke runs application code, turning a panic into an error
func invoke(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// codec.Handler

func (c *connection) OnStatus(version string, status int, reason string) {
	resp := c.ex.resp
	resp.Version = version
	resp.Status = status
	resp.Reason = reason
	c.ex.advance(StateHeadersReceived)
}

func (c *connection) OnHeader(name, value string) {
	c.ex.resp.Headers.Add(name, value)
}

func (c *connection) OnHeadersComplete(mode codec.BodyMode) {
	ex := c.ex
	ex.resp.bodyMode = mode
	fiberlog.Debugf("[%s] Headers received: %d, body %s", ex.id, ex.resp.Status, mode)

	if l := ex.req.onHeaders; l != nil {
		if err := invoke(func() { l(ex.resp) }); err != nil {
			c.listenerErr = err
		}
	}
	// The body, if any, starts with the next byte
	ex.advance(StateStreaming)
}

func (c *connection) OnContent(fragment []byte) bool {
	ex := c.ex
	if ex.isTerminal() || c.listenerErr != nil {
		c.paused = true
		return true
	}
	ex.advance(StateStreaming)
	ex.fragments.Add(1)
	resp := ex.resp
	resp.received += int64(len(fragment))

	req := ex.req
	switch {
	case req.onAsync != nil:
		c.mu.Lock()
		c.ackGen++
		cb := &contentCallback{conn: c, gen: c.ackGen}
		c.flow = flowDelivering
		c.acked = false
		c.mu.Unlock()

		c.paused = true
		if err := invoke(func() { req.onAsync(resp, fragment, cb) }); err != nil {
			cb.Failed(err)
		}
		return true
	case req.onContent != nil:
		if err := invoke(func() { req.onContent(resp, fragment) }); err != nil {
			c.listenerErr = err
			c.paused = true
			return true
		}
		return false
	default:
		resp.content = append(resp.content, fragment...)
		return false
	}
}

func (c *connection) OnTrailer(name, value string) {
	c.ex.resp.Trailers.Add(name, value)
}

func (c *connection) OnMessageComplete() {
	c.ex.advance(StateStreaming)
}
