package spi

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
)

// exchangeDelegate implements HTTPExchange over a fiber request context
type exchangeDelegate struct {
	c       *fiber.Ctx
	httpCtx *HTTPContext

	requestHeaders  http.Header
	responseHeaders http.Header
	in              io.Reader
	out             io.Writer

	code      int
	length    int64
	written   int64
	closed    bool
	principal *Principal
}

func newExchangeDelegate(c *fiber.Ctx, httpCtx *HTTPContext) *exchangeDelegate {
	d := &exchangeDelegate{
		c:               c,
		httpCtx:         httpCtx,
		requestHeaders:  make(http.Header),
		responseHeaders: make(http.Header),
		in:              bytes.NewReader(c.Body()),
		code:            -1,
	}
	c.Request().Header.VisitAll(func(key, value []byte) {
		d.requestHeaders.Add(string(key), string(value))
	})
	d.out = &responseWriter{d: d}
	return d
}

func (d *exchangeDelegate) RequestHeaders() http.Header  { return d.requestHeaders }
func (d *exchangeDelegate) ResponseHeaders() http.Header { return d.responseHeaders }

func (d *exchangeDelegate) RequestURI() *url.URL {
	u, err := url.ParseRequestURI(string(d.c.Request().RequestURI()))
	if err != nil {
		return &url.URL{Path: d.c.Path()}
	}
	return u
}

func (d *exchangeDelegate) RequestMethod() string     { return d.c.Method() }
func (d *exchangeDelegate) HTTPContext() *HTTPContext { return d.httpCtx }
func (d *exchangeDelegate) RequestBody() io.Reader    { return d.in }
func (d *exchangeDelegate) ResponseBody() io.Writer   { return d.out }
func (d *exchangeDelegate) RemoteAddr() net.Addr      { return d.c.Context().RemoteAddr() }
func (d *exchangeDelegate) LocalAddr() net.Addr       { return d.c.Context().LocalAddr() }
func (d *exchangeDelegate) ResponseCode() int         { return d.code }
func (d *exchangeDelegate) Protocol() string          { return string(d.c.Request().Header.Protocol()) }
func (d *exchangeDelegate) Principal() *Principal     { return d.principal }
func (d *exchangeDelegate) SetPrincipal(p *Principal) { d.principal = p }

func (d *exchangeDelegate) Attribute(name string) any {
	return d.c.Locals(name)
}

func (d *exchangeDelegate) SetAttribute(name string, value any) {
	d.c.Locals(name, value)
}

func (d *exchangeDelegate) SetStreams(in io.Reader, out io.Writer) {
	if in != nil {
		d.in = in
	}
	if out != nil {
		d.out = out
	}
}

func (d *exchangeDelegate) SendResponseHeaders(code int, length int64) error {
	if d.closed {
		return ErrExchangeClosed
	}
	if d.code != -1 {
		return ErrHeadersSent
	}

	d.code = code
	d.length = length
	d.c.Status(code)

	header := &d.c.Response().Header
	for name, values := range d.responseHeaders {
		header.Del(name)
		for _, v := range values {
			header.Add(name, v)
		}
	}
	if length > 0 {
		header.SetContentLength(int(length))
	}
	return nil
}

// Close ends the exchange; a fixed-length response must be complete
func (d *exchangeDelegate) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.code == -1 {
		return ErrHeadersNotSent
	}
	if d.length > 0 && d.written != d.length {
		return ErrLengthMismatch
	}
	if d.length == NoBodyLength {
		d.c.Response().ResetBody()
	}
	return nil
}

type responseWriter struct {
	d *exchangeDelegate
}

func (w *responseWriter) Write(p []byte) (int, error) {
	d := w.d
	switch {
	case d.closed:
		return 0, ErrExchangeClosed
	case d.code == -1:
		return 0, ErrHeadersNotSent
	case d.length == NoBodyLength:
		return 0, ErrNoResponseBody
	case d.length > 0 && d.written+int64(len(p)) > d.length:
		return 0, ErrLengthMismatch
	}

	d.c.Response().AppendBody(p)
	d.written += int64(len(p))
	return len(p), nil
}
