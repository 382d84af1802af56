package client

import "sync/atomic"

// Callback acknowledges one content fragment. Only the first signal counts;
// later calls to either method are ignored.
type Callback interface {
	Succeeded()
	Failed(err error)
}

type contentCallback struct {
	conn *connection
	gen  uint64
	done atomic.Bool
}

func (cb *contentCallback) Succeeded() {
	if cb.done.CompareAndSwap(false, true) {
		cb.conn.signal(cb.gen, nil)
	}
}

func (cb *contentCallback) Failed(err error) {
	if err == nil {
		err = ErrExchangeAborted
	}
	if cb.done.CompareAndSwap(false, true) {
		cb.conn.signal(cb.gen, err)
	}
}
