// Package client is a non-blocking HTTP/1.1 client engine. Responses are
// parsed incrementally off the socket, body fragments reach the application
// through acknowledgment callbacks that throttle reading, and a connection
// returns to its pool only once the end of the message was observed.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/internal/services/codec"
	"github.com/Egham-7/adaptive-h1/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Dialer opens transport connections
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Breaker gates exchanges per destination ("scheme://host:port")
type Breaker interface {
	CanExecute(destination string) bool
	RecordSuccess(destination string)
	RecordFailure(destination string)
}

// Observer is told about every exchange that reached a terminal state. It is
// called before the completion listener and must not block.
type Observer interface {
	ExchangeCompleted(info ExchangeInfo)
}

// ExchangeInfo summarizes a finished exchange
type ExchangeInfo struct {
	ID           string
	Destination  string
	Method       string
	Path         string
	Status       int
	Succeeded    bool
	Failure      error
	FailureKind  string
	FailedIn     ExchangeState // state the exchange was in when it failed
	BodyMode     string
	ContentBytes int64
	Fragments    int64
	Reused       bool
	ConnectionID string
	Duration     time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithBreaker gates exchanges through a per-destination circuit breaker
func WithBreaker(b Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithObserver reports every finished exchange to o
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithTLSConfig sets the TLS configuration for https destinations
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithDialer replaces the TCP dialer
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client sends requests over pooled HTTP/1.1 connections. It must be started
// before use and stopped to release its workers and connections.
type Client struct {
	cfg       models.ClientConfig
	limits    codec.Limits
	dialer    Dialer
	tlsConfig *tls.Config
	breaker   Breaker
	observer  Observer

	exec     *executor
	buckets  *clientcache.Cache[*bucket]
	inflight sync.Map // exchange ID -> *exchange

	mu      sync.RWMutex
	running bool
	stopped bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New creates a client from cfg; unset fields take their defaults
func New(cfg models.ClientConfig, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	c := &Client{
		cfg: cfg,
		limits: codec.Limits{
			MaxHeaderBytes:  cfg.MaxHeaderBytes,
			MaxContentBytes: cfg.MaxContentBytes,
		},
		buckets: clientcache.NewCache[*bucket](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: cfg.ConnectTimeout(), KeepAlive: 30 * time.Second}
	}
	return c
}

// Config returns the effective configuration
func (c *Client) Config() models.ClientConfig {
	return c.cfg
}

// Start launches the worker pool and the idle connection reaper
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrClientStarted
	}
	if c.stopped {
		return ErrClientStopped
	}

	c.exec = newExecutor(c.cfg.Workers, c.cfg.QueueSize)
	c.quit = make(chan struct{})
	c.running = true

	c.wg.Add(1)
	go c.maintain()

	fiberlog.Infof("HTTP client started: %d workers, %d connections per destination",
		c.cfg.Workers, c.cfg.MaxConnectionsPerDestination)
	return nil
}

// Stop fails in-flight exchanges, closes every connection and stops the
// workers. A stopped client cannot be restarted.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.stopped = true
	close(c.quit)
	c.mu.Unlock()

	c.wg.Wait()

	c.inflight.Range(func(_, value any) bool {
		c.abort(value.(*exchange), ErrClientStopped)
		return true
	})
	c.buckets.Range(func(_ string, b *bucket) bool {
		b.closeAll()
		return true
	})
	c.exec.Stop()

	fiberlog.Info("HTTP client stopped")
	return nil
}

// IsRunning reports whether the client accepts requests
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Stats returns pool statistics per destination, sorted by destination
func (c *Client) Stats() []PoolStats {
	var stats []PoolStats
	c.buckets.Range(func(_ string, b *bucket) bool {
		stats = append(stats, b.stats())
		return true
	})
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Destination < stats[j].Destination
	})
	return stats
}

func (c *Client) submit(task func()) {
	c.exec.Submit(task)
}

func (c *Client) send(r *Request, listener CompleteListener) *exchange {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout()
	}
	ex := newExchange(r, listener, timeout)
	dest := r.destination()

	if !c.IsRunning() {
		c.failEarly(ex, newTransportError(ex.id, "cannot send request", ErrClientStopped))
		return ex
	}
	if c.breaker != nil && !c.breaker.CanExecute(dest.String()) {
		c.failEarly(ex, newUnavailableError(ex.id, dest.String()))
		return ex
	}

	fiberlog.Debugf("[%s] %s %s%s", ex.id, r.method, dest, r.path)
	c.inflight.Store(ex.id, ex)
	ex.arm(func() { c.expire(ex) })
	go c.establish(ex, dest)
	return ex
}

// establish acquires a connection for ex, writes the request and hands the
// connection to the worker pool
func (c *Client) establish(ex *exchange, dest destination) {
	b, err := c.buckets.GetOrCreate(dest.String(), func() (*bucket, error) {
		return newBucket(c, dest), nil
	})
	if err != nil {
		c.failEarly(ex, newTransportError(ex.id, "no pool for "+dest.String(), err))
		return
	}

	ctx, cancel := context.WithDeadline(context.Background(), ex.deadline)
	defer cancel()

	conn, reused, err := b.acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.expire(ex)
			return
		}
		c.failEarly(ex, newTransportError(ex.id, "failed to connect to "+dest.String(), err))
		return
	}

	ex.reused.Store(reused)
	ex.conn.Store(conn)
	if ex.isTerminal() {
		b.release(conn)
		return
	}

	if err := conn.dispatch(ex); err != nil {
		conn.fail(ex, newTransportError(ex.id, "failed to write request", err))
		return
	}
	c.submit(conn.process)
}

func (c *Client) dial(ctx context.Context, b *bucket) (*connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout())
	defer cancel()

	netConn, err := c.dialer.DialContext(dialCtx, "tcp", b.dest.address())
	if err != nil {
		return nil, err
	}

	if b.dest.scheme == "https" {
		var cfg *tls.Config
		if c.tlsConfig != nil {
			cfg = c.tlsConfig.Clone()
		} else {
			cfg = &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify} // #nosec G402 - opt-in via config
		}
		if cfg.ServerName == "" {
			cfg.ServerName = b.dest.host
		}
		tlsConn := tls.Client(netConn, cfg)
		if err := tlsConn.HandshakeContext(dialCtx); err != nil {
			_ = netConn.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		netConn = tlsConn
	}

	return newConnection(c, b, netConn), nil
}

// failEarly fails an exchange that never got a connection
func (c *Client) failEarly(ex *exchange, failure *ExchangeError) {
	prev, ok := ex.terminate(StateFailed)
	if !ok {
		return
	}
	c.finish(ex, prev, failure)
}

// expire is the exchange deadline firing
func (c *Client) expire(ex *exchange) {
	c.terminateExternally(ex, newTimeoutError(ex.id, ex.timeout))
}

// abort fails ex on behalf of the caller
func (c *Client) abort(ex *exchange, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		c.expire(ex)
		return
	}
	c.terminateExternally(ex, newTransportError(ex.id, "request cancelled", fmt.Errorf("%w: %w", ErrExchangeAborted, cause)))
}

// terminateExternally fails ex from outside its processing task. Whatever
// state the connection is in, it can no longer be trusted, so it is closed;
// a pending read or acknowledgment then finds the exchange terminal.
func (c *Client) terminateExternally(ex *exchange, failure *ExchangeError) {
	prev, ok := ex.terminate(StateFailed)
	if !ok {
		return
	}
	if conn := ex.conn.Load(); conn != nil {
		conn.bucket.discard(conn)
	}
	c.finish(ex, prev, failure)
}

// finish builds the single Result of ex and delivers it
func (c *Client) finish(ex *exchange, prev ExchangeState, failure *ExchangeError) {
	c.inflight.Delete(ex.id)

	res := Result{Request: ex.req, Response: ex.resp}
	if failure != nil {
		res.Failure = failure
		if prev == StateDispatched {
			res.Response = nil
		}
		fiberlog.Warnf("[%s] Exchange failed after %s (%s): %v", ex.id, prev, failure.Kind, failure)
	} else {
		fiberlog.Debugf("[%s] Exchange complete: %d, %d bytes in %d fragments", ex.id,
			ex.resp.Status, ex.resp.received, ex.fragments.Load())
	}

	c.record(ex, prev, failure)
	ex.deliver(res)
}

func (c *Client) record(ex *exchange, prev ExchangeState, failure *ExchangeError) {
	dest := ex.req.Destination()

	if c.breaker != nil {
		switch {
		case failure == nil && ex.resp.Status >= 500:
			c.breaker.RecordFailure(dest)
		case failure == nil:
			c.breaker.RecordSuccess(dest)
		case failure.Kind == ProtocolParseError, failure.Kind == TransportError, failure.Kind == TimeoutError:
			c.breaker.RecordFailure(dest)
		}
	}

	if c.observer == nil {
		return
	}
	info := ExchangeInfo{
		ID:           ex.id,
		Destination:  dest,
		Method:       ex.req.method,
		Path:         ex.req.path,
		Status:       ex.resp.Status,
		Succeeded:    failure == nil,
		BodyMode:     ex.resp.BodyMode(),
		ContentBytes: ex.resp.received,
		Fragments:    ex.fragments.Load(),
		Reused:       ex.reused.Load(),
		Duration:     time.Since(ex.started),
	}
	if failure != nil {
		info.Failure = failure
		info.FailureKind = failure.Kind.String()
		info.FailedIn = prev
	}
	if conn := ex.conn.Load(); conn != nil {
		info.ConnectionID = conn.id
	}
	c.observer.ExchangeCompleted(info)
}

// maintain evicts idle connections until Stop
func (c *Client) maintain() {
	defer c.wg.Done()

	interval := c.cfg.IdleTimeout() / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case now := <-ticker.C:
			c.evictIdle(now)
		}
	}
}

func (c *Client) evictIdle(now time.Time) int {
	cutoff := now.Add(-c.cfg.IdleTimeout())
	evicted := 0
	c.buckets.Range(func(_ string, b *bucket) bool {
		evicted += b.evictIdle(cutoff)
		return true
	})
	return evicted
}
