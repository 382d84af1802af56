package client

// Result is the terminal outcome of one exchange. Exactly one Result is
// delivered per exchange.
type Result struct {
	Request  *Request
	Response *Response // nil when the failure happened before the status line
	Failure  error
}

// IsSucceeded reports whether the exchange completed
func (r Result) IsSucceeded() bool {
	return r.Failure == nil
}

// IsFailed reports whether the exchange failed
func (r Result) IsFailed() bool {
	return r.Failure != nil
}

// CompleteListener receives the Result of an exchange
type CompleteListener func(Result)

// ContentListener receives body fragments synchronously; returning
// acknowledges the fragment. The fragment is only valid during the call.
type ContentListener func(resp *Response, content []byte)

// AsyncContentListener receives body fragments together with a Callback. The
// exchange reads nothing further until the Callback is signaled, which may
// happen inline or later from any goroutine. The fragment stays valid until
// then.
type AsyncContentListener func(resp *Response, content []byte, cb Callback)

// HeadersListener runs once the response header section is complete
type HeadersListener func(resp *Response)
