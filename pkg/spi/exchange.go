// Package spi exposes gateway requests through a platform-neutral exchange
// interface so handlers written against it do not depend on fiber.
package spi

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
)

var (
	ErrHeadersSent    = errors.New("spi: response headers already sent")
	ErrHeadersNotSent = errors.New("spi: response headers not sent")
	ErrNoResponseBody = errors.New("spi: response has no body")
	ErrLengthMismatch = errors.New("spi: response body does not match declared length")
	ErrExchangeClosed = errors.New("spi: exchange closed")
)

// Response length values for SendResponseHeaders
const (
	StreamedLength int64 = 0  // any number of body bytes may follow
	NoBodyLength   int64 = -1 // no body may be written
)

// HTTPContext is the mount point a handler was registered under
type HTTPContext struct {
	Path       string
	Attributes map[string]any
}

// Principal is an authenticated caller
type Principal struct {
	Username string
	Realm    string
}

func (p *Principal) Name() string {
	return p.Realm + ":" + p.Username
}

// HTTPExchange is one request/response pair seen by a Handler
type HTTPExchange interface {
	RequestHeaders() http.Header
	// ResponseHeaders may be modified until SendResponseHeaders
	ResponseHeaders() http.Header
	RequestURI() *url.URL
	RequestMethod() string
	HTTPContext() *HTTPContext
	Close() error
	RequestBody() io.Reader
	ResponseBody() io.Writer
	// SendResponseHeaders commits the status and headers. length > 0 fixes the
	// body size, StreamedLength allows any size, NoBodyLength forbids a body.
	SendResponseHeaders(code int, length int64) error
	RemoteAddr() net.Addr
	// ResponseCode returns -1 until SendResponseHeaders was called
	ResponseCode() int
	LocalAddr() net.Addr
	Protocol() string
	Attribute(name string) any
	SetAttribute(name string, value any)
	// SetStreams replaces the request and response bodies; nil keeps the current one
	SetStreams(in io.Reader, out io.Writer)
	Principal() *Principal
	SetPrincipal(p *Principal)
}

// HTTPSExchange is an HTTPExchange received over TLS
type HTTPSExchange interface {
	HTTPExchange
	TLSSession() *tls.ConnectionState
}

// Handler serves exchanges
type Handler interface {
	Handle(ex HTTPExchange) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ex HTTPExchange) error

func (f HandlerFunc) Handle(ex HTTPExchange) error {
	return f(ex)
}

type httpExchange struct {
	*exchangeDelegate
}

// httpsExchange forwards everything to the delegate. The session is not
// exposed.
type httpsExchange struct {
	*exchangeDelegate
}

func (e *httpsExchange) TLSSession() *tls.ConnectionState {
	return nil
}
