package writers

import (
	"bufio"

	"github.com/Egham-7/adaptive-h1/internal/services/stream/contracts"

	"github.com/valyala/fasthttp"
)

// FlushWriter relays raw body bytes into a fasthttp body stream
type FlushWriter struct {
	out        *bufio.Writer
	downstream contracts.Downstream
	requestID  string
	written    int64
	flushes    int64
}

func NewFlushWriter(out *bufio.Writer, downstream contracts.Downstream, requestID string) *FlushWriter {
	return &FlushWriter{
		out:        out,
		downstream: downstream,
		requestID:  requestID,
	}
}

func (w *FlushWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if !w.downstream.Connected() {
		return contracts.NewDisconnected(w.requestID, w.written)
	}

	// Partial writes still count
	n, err := w.out.Write(p)
	w.written += int64(n)
	return w.classify(err)
}

// Flush pushes buffered bytes to the caller's connection
func (w *FlushWriter) Flush() error {
	if !w.downstream.Connected() {
		return contracts.NewDisconnected(w.requestID, w.written)
	}
	if err := w.out.Flush(); err != nil {
		return w.classify(err)
	}
	w.flushes++
	return nil
}

// Close flushes whatever is still buffered; a gone caller is not an error
func (w *FlushWriter) Close() error {
	if !w.downstream.Connected() {
		return nil
	}
	return w.classify(w.out.Flush())
}

// Written returns the body bytes accepted so far
func (w *FlushWriter) Written() int64 {
	return w.written
}

// Flushes returns how many flushes reached the connection
func (w *FlushWriter) Flushes() int64 {
	return w.flushes
}

func (w *FlushWriter) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case contracts.IsConnectionClosed(err):
		return contracts.NewDisconnected(w.requestID, w.written)
	default:
		return contracts.NewWriteFailed(w.requestID, w.written, err)
	}
}

// RequestCtxDownstream treats a fasthttp caller as attached until the server
// finishes the request
type RequestCtxDownstream struct {
	ctx *fasthttp.RequestCtx
}

func NewRequestCtxDownstream(ctx *fasthttp.RequestCtx) *RequestCtxDownstream {
	return &RequestCtxDownstream{ctx: ctx}
}

func (d *RequestCtxDownstream) Connected() bool {
	if d.ctx == nil {
		return false
	}
	select {
	case <-d.ctx.Done():
		return false
	default:
		return true
	}
}
