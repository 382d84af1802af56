package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Request describes one exchange to send. Builder methods return the receiver
// so calls can be chained; a Request must not be modified after Send.
type Request struct {
	client *Client

	scheme  string
	host    string
	port    int
	method  string
	path    string
	header  http.Header
	body    []byte
	timeout time.Duration

	onHeaders HeadersListener
	onContent ContentListener
	onAsync   AsyncContentListener
}

// NewRequest starts a GET / request to host:port over plain HTTP
func (c *Client) NewRequest(host string, port int) *Request {
	return &Request{
		client: c,
		scheme: "http",
		host:   host,
		port:   port,
		method: http.MethodGet,
		path:   "/",
		header: make(http.Header),
	}
}

// NewRequestURL starts a GET request for an absolute http or https URL
func (c *Client) NewRequestURL(raw string) (*Request, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("request URL %q has no host", raw)
	}

	port := defaultPort(scheme)
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
	}

	return c.NewRequest(u.Hostname(), port).Scheme(scheme).Path(u.RequestURI()), nil
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// Scheme sets http or https
func (r *Request) Scheme(scheme string) *Request {
	r.scheme = strings.ToLower(scheme)
	return r
}

// Method sets the request method
func (r *Request) Method(method string) *Request {
	r.method = strings.ToUpper(method)
	return r
}

// Path sets the request target, including any query
func (r *Request) Path(path string) *Request {
	if path == "" {
		path = "/"
	}
	r.path = path
	return r
}

// Header adds a request header
func (r *Request) Header(name, value string) *Request {
	r.header.Add(name, value)
	return r
}

// Timeout sets the exchange deadline, measured from Send. Zero selects the
// client default.
func (r *Request) Timeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// Body sets the request content, sent with a Content-Length
func (r *Request) Body(body []byte) *Request {
	r.body = body
	return r
}

// OnResponseHeaders registers a listener for the complete header section
func (r *Request) OnResponseHeaders(l HeadersListener) *Request {
	r.onHeaders = l
	return r
}

// OnResponseContent registers a synchronous content listener. Each fragment
// is acknowledged when the listener returns.
func (r *Request) OnResponseContent(l ContentListener) *Request {
	r.onContent = l
	r.onAsync = nil
	return r
}

// OnResponseContentAsync registers a content listener that acknowledges each
// fragment through a Callback.
func (r *Request) OnResponseContentAsync(l AsyncContentListener) *Request {
	r.onAsync = l
	r.onContent = nil
	return r
}

// GetMethod returns the request method
func (r *Request) GetMethod() string { return r.method }

// GetPath returns the request target
func (r *Request) GetPath() string { return r.path }

// Destination returns scheme://host:port
func (r *Request) Destination() string { return r.destination().String() }

func (r *Request) destination() destination {
	return destination{scheme: r.scheme, host: r.host, port: r.port}
}

// Send dispatches the request. The listener receives exactly one Result.
func (r *Request) Send(listener CompleteListener) {
	r.client.send(r, listener)
}

// Do sends the request and waits for the Result. Cancelling ctx aborts the
// exchange.
func (r *Request) Do(ctx context.Context) (*Response, error) {
	results := make(chan Result, 1)
	ex := r.client.send(r, func(res Result) { results <- res })

	select {
	case res := <-results:
		return res.Response, res.Failure
	case <-ctx.Done():
		r.client.abort(ex, ctx.Err())
		res := <-results
		return res.Response, res.Failure
	}
}

// writeTo serializes the request head and body
func (r *Request) writeTo(buf *bytebufferpool.ByteBuffer) {
	buf.B = append(buf.B, r.method...)
	buf.B = append(buf.B, ' ')
	buf.B = append(buf.B, r.path...)
	buf.B = append(buf.B, " HTTP/1.1\r\n"...)

	if r.header.Get("Host") == "" {
		buf.B = append(buf.B, "Host: "...)
		if r.port != defaultPort(r.scheme) {
			buf.B = append(buf.B, net.JoinHostPort(r.host, strconv.Itoa(r.port))...)
		} else if strings.Contains(r.host, ":") {
			buf.B = append(buf.B, '[')
			buf.B = append(buf.B, r.host...)
			buf.B = append(buf.B, ']')
		} else {
			buf.B = append(buf.B, r.host...)
		}
		buf.B = append(buf.B, "\r\n"...)
	}
	_ = r.header.WriteSubset(buf, map[string]bool{"Content-Length": true, "Transfer-Encoding": true})

	if r.body != nil || r.method == http.MethodPost || r.method == http.MethodPut || r.method == http.MethodPatch {
		buf.B = append(buf.B, "Content-Length: "...)
		buf.B = strconv.AppendInt(buf.B, int64(len(r.body)), 10)
		buf.B = append(buf.B, "\r\n"...)
	}
	buf.B = append(buf.B, "\r\n"...)
	buf.B = append(buf.B, r.body...)
}
