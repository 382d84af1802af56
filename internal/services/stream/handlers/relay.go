package handlers

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/services/stream/contracts"
	"github.com/Egham-7/adaptive-h1/pkg/client"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

type fragment struct {
	data []byte
	cb   client.Callback
}

// Relay moves one upstream exchange to a downstream stream writer. A body
// fragment is acknowledged only after it was written and flushed downstream,
// so a slow reader throttles the upstream connection.
type Relay struct {
	requestID   string
	destination string

	headers   chan *client.Response
	fragments chan fragment
	results   chan client.Result
	pending   *client.Result
	relayed   int64
}

// NewRelay creates a relay for one exchange
func NewRelay(requestID, destination string) *Relay {
	// The engine delivers one fragment at a time and waits for its
	// acknowledgment, so single-slot channels never block it.
	return &Relay{
		requestID:   requestID,
		destination: destination,
		headers:     make(chan *client.Response, 1),
		fragments:   make(chan fragment, 1),
		results:     make(chan client.Result, 1),
	}
}

// Attach registers the relay's listeners on req
func (r *Relay) Attach(req *client.Request) *client.Request {
	return req.OnResponseHeaders(r.onHeaders).OnResponseContentAsync(r.onContent)
}

// OnComplete is the completion listener to pass to Send
func (r *Relay) OnComplete(result client.Result) {
	r.results <- result
}

func (r *Relay) onHeaders(resp *client.Response) {
	r.headers <- resp
}

func (r *Relay) onContent(_ *client.Response, data []byte, cb client.Callback) {
	r.fragments <- fragment{data: data, cb: cb}
}

// AwaitHeaders blocks until the response header section arrived or the
// exchange ended without one. Exactly one of resp and failure is non-nil
// unless ctx ended first.
func (r *Relay) AwaitHeaders(ctx context.Context) (resp *client.Response, failure error, err error) {
	select {
	case resp := <-r.headers:
		return resp, nil, nil
	case result := <-r.results:
		select {
		case resp := <-r.headers:
			r.pending = &result
			return resp, nil, nil
		default:
		}
		if result.IsSucceeded() {
			r.pending = &result
			return result.Response, nil, nil
		}
		return nil, result.Failure, nil
	case <-ctx.Done():
		go r.drain(ctx.Err())
		return nil, nil, ctx.Err()
	}
}

// Stream writes every body fragment to writer until the exchange ends. The
// returned error always carries the relay outcome; a Drained outcome means the
// whole body reached the caller.
func (r *Relay) Stream(ctx context.Context, writer contracts.BodyWriter) error {
	startTime := time.Now()
	var fragments int64

	defer func() {
		fiberlog.Debugf("[%s] Relay finished: %d fragments, %d bytes in %v",
			r.requestID, fragments, r.relayed, time.Since(startTime))

		if err := writer.Close(); err != nil && !contracts.IsExpected(err) {
			fiberlog.Errorf("[%s] Error closing writer: %v", r.requestID, err)
		}
	}()

	if r.pending != nil {
		return r.finish(*r.pending)
	}

	for {
		select {
		case f := <-r.fragments:
			if err := r.forward(writer, f.data); err != nil {
				f.cb.Failed(err)
				fiberlog.Infof("[%s] Downstream write failed, failing exchange: %v", r.requestID, err)
				go r.drain(err)
				return err
			}
			f.cb.Succeeded()
			fragments++

		case result := <-r.results:
			return r.finish(result)

		case <-ctx.Done():
			fiberlog.Infof("[%s] Context cancelled, stopping relay", r.requestID)
			go r.drain(ctx.Err())
			return contracts.NewDisconnected(r.requestID, r.relayed)
		}
	}
}

// Relayed returns the body bytes flushed downstream so far
func (r *Relay) Relayed() int64 {
	return r.relayed
}

func (r *Relay) forward(writer contracts.BodyWriter, data []byte) error {
	err := writer.Write(data)
	if err == nil {
		err = writer.Flush()
	}
	if err == nil {
		r.relayed += int64(len(data))
		return nil
	}
	if _, ok := contracts.OutcomeOf(err); ok {
		return err
	}
	return contracts.NewWriteFailed(r.requestID, r.relayed, err)
}

func (r *Relay) finish(result client.Result) error {
	if result.IsFailed() {
		return contracts.NewUpstreamFailed(r.requestID, r.destination, r.relayed, result.Failure)
	}
	return contracts.NewDrained(r.requestID, r.destination, r.relayed)
}

// drain fails any further fragments until the exchange reports its result
func (r *Relay) drain(cause error) {
	for {
		select {
		case f := <-r.fragments:
			f.cb.Failed(cause)
		case <-r.headers:
		case <-r.results:
			return
		}
	}
}
