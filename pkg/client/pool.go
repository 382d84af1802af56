package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// destination identifies a pool bucket
type destination struct {
	scheme string
	host   string
	port   int
}

func (d destination) address() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

func (d destination) String() string {
	return d.scheme + "://" + d.address()
}

// PoolStats describes the connections held for one destination
type PoolStats struct {
	Destination string `json:"destination"`
	Idle        int    `json:"idle"`
	Active      int    `json:"active"`
	Dialing     int    `json:"dialing"`
	Waiting     int    `json:"waiting"`
	Opened      int64  `json:"opened"`
	Discarded   int64  `json:"discarded"`
}

// bucket holds the connections of one destination. Every move between idle,
// active and closed happens under mu.
type bucket struct {
	client *Client
	dest   destination
	max    int

	mu        sync.Mutex
	idle      []*connection
	active    map[*connection]struct{}
	dialing   int
	waiters   []chan struct{}
	closed    bool
	opened    int64
	discarded int64
}

func newBucket(client *Client, dest destination) *bucket {
	return &bucket{
		client: client,
		dest:   dest,
		max:    client.cfg.MaxConnectionsPerDestination,
		active: make(map[*connection]struct{}),
	}
}

// acquire returns an idle connection, opens a new one while under the limit,
// or waits for one of the two to become possible. reused reports whether the
// connection already served an exchange.
func (b *bucket) acquire(ctx context.Context) (conn *connection, reused bool, err error) {
	b.mu.Lock()
	for {
		if b.closed {
			b.mu.Unlock()
			return nil, false, ErrClientStopped
		}

		if n := len(b.idle); n > 0 {
			c := b.idle[n-1]
			b.idle[n-1] = nil
			b.idle = b.idle[:n-1]
			c.state = connActive
			b.active[c] = struct{}{}
			b.mu.Unlock()
			return c, true, nil
		}

		if len(b.active)+b.dialing < b.max {
			b.dialing++
			b.mu.Unlock()

			c, err := b.client.dial(ctx, b)

			b.mu.Lock()
			b.dialing--
			if err != nil {
				b.notifyLocked()
				b.mu.Unlock()
				return nil, false, err
			}
			if b.closed {
				b.mu.Unlock()
				c.state = connClosed
				c.close()
				c.recycle()
				return nil, false, ErrClientStopped
			}
			b.active[c] = struct{}{}
			b.opened++
			b.mu.Unlock()
			fiberlog.Debugf("[POOL] Opened connection %s to %s", c.id, b.dest)
			return c, false, nil
		}

		w := make(chan struct{}, 1)
		b.waiters = append(b.waiters, w)
		b.mu.Unlock()

		select {
		case <-w:
			b.mu.Lock()
		case <-ctx.Done():
			b.mu.Lock()
			if !b.removeWaiterLocked(w) {
				// Woken concurrently with the cancellation: pass it on.
				b.notifyLocked()
			}
			b.mu.Unlock()
			return nil, false, ctx.Err()
		}
	}
}

// release makes an active connection idle again
func (b *bucket) release(c *connection) {
	b.mu.Lock()
	if c.state != connActive {
		b.mu.Unlock()
		return
	}
	if b.closed {
		delete(b.active, c)
		c.state = connClosed
		b.mu.Unlock()
		c.close()
		return
	}

	delete(b.active, c)
	c.state = connIdle
	c.idleSince = time.Now()
	b.idle = append(b.idle, c)
	b.notifyLocked()
	b.mu.Unlock()
}

// discard closes the connection and forgets it. Calling it again is a no-op.
func (b *bucket) discard(c *connection) {
	b.mu.Lock()
	switch c.state {
	case connClosed:
		b.mu.Unlock()
		return
	case connActive:
		delete(b.active, c)
	case connIdle:
		b.removeIdleLocked(c)
	}
	c.state = connClosed
	b.discarded++
	b.notifyLocked()
	b.mu.Unlock()

	c.close()
}

// evictIdle closes connections idle since before cutoff
func (b *bucket) evictIdle(cutoff time.Time) int {
	b.mu.Lock()
	var evicted []*connection
	kept := b.idle[:0]
	for _, c := range b.idle {
		if c.idleSince.Before(cutoff) {
			c.state = connClosed
			evicted = append(evicted, c)
			b.discarded++
			b.notifyLocked()
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(b.idle); i++ {
		b.idle[i] = nil
	}
	b.idle = kept
	b.mu.Unlock()

	for _, c := range evicted {
		fiberlog.Debugf("[POOL] Evicting idle connection %s to %s", c.id, b.dest)
		c.close()
		c.recycle()
	}
	return len(evicted)
}

// closeAll closes every connection and refuses further acquires
func (b *bucket) closeAll() {
	b.mu.Lock()
	b.closed = true
	idle := b.idle
	b.idle = nil
	active := make([]*connection, 0, len(b.active))
	for c := range b.active {
		active = append(active, c)
	}
	clear(b.active)
	for _, c := range idle {
		c.state = connClosed
	}
	for _, c := range active {
		c.state = connClosed
	}
	for _, w := range b.waiters {
		w <- struct{}{}
	}
	b.waiters = nil
	b.mu.Unlock()

	for _, c := range idle {
		c.close()
		c.recycle()
	}
	for _, c := range active {
		c.close()
	}
}

func (b *bucket) stats() PoolStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return PoolStats{
		Destination: b.dest.String(),
		Idle:        len(b.idle),
		Active:      len(b.active),
		Dialing:     b.dialing,
		Waiting:     len(b.waiters),
		Opened:      b.opened,
		Discarded:   b.discarded,
	}
}

func (b *bucket) notifyLocked() {
	if len(b.waiters) == 0 {
		return
	}
	w := b.waiters[0]
	b.waiters[0] = nil
	b.waiters = b.waiters[1:]
	w <- struct{}{}
}

func (b *bucket) removeWaiterLocked(w chan struct{}) bool {
	for i, x := range b.waiters {
		if x == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (b *bucket) removeIdleLocked(c *connection) {
	for i, x := range b.idle {
		if x == c {
			b.idle = append(b.idle[:i], b.idle[i+1:]...)
			return
		}
	}
}
