package client

import (
	"net/http"

	"github.com/Egham-7/adaptive-h1/internal/services/codec"
)

// Response is the response-in-progress of an exchange. Headers are complete
// once the headers listener runs; Trailers and Content are complete once the
// exchange succeeded.
type Response struct {
	Version  string
	Status   int
	Reason   string
	Headers  http.Header
	Trailers http.Header

	bodyMode codec.BodyMode
	content  []byte
	received int64
}

func newResponse() *Response {
	return &Response{
		Headers:  make(http.Header),
		Trailers: make(http.Header),
	}
}

// Content returns the buffered body. It is empty when a content listener was
// registered, since the listener consumed the fragments instead.
func (r *Response) Content() []byte {
	return r.content
}

// ContentString returns the buffered body as a string
func (r *Response) ContentString() string {
	return string(r.content)
}

// ContentLength returns the number of body bytes received so far
func (r *Response) ContentLength() int64 {
	return r.received
}

// BodyMode names the framing the response used: none, chunked,
// content-length or until-close
func (r *Response) BodyMode() string {
	return r.bodyMode.String()
}
