package client

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExchangeStateIsMonotonic(t *testing.T) {
	ex := newExchange(&Request{}, nil, time.Second)

	if !ex.advance(StateStreaming) {
		t.Fatal("advance to STREAMING refused")
	}
	if ex.advance(StateHeadersReceived) {
		t.Error("advance moved the exchange backwards")
	}
	if prev, ok := ex.terminate(StateComplete); !ok || prev != StateStreaming {
		t.Fatalf("terminate = (%v, %v)", prev, ok)
	}
	if _, ok := ex.terminate(StateFailed); ok {
		t.Error("second terminal transition won")
	}
	if ex.advance(StateStreaming) || ex.State() != StateComplete {
		t.Errorf("state after terminal = %v", ex.State())
	}
}

func TestExchangeTerminateRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		ex := newExchange(&Request{}, nil, time.Second)
		var winners atomic.Int32
		var wg sync.WaitGroup
		for _, to := range []ExchangeState{StateComplete, StateFailed, StateFailed} {
			wg.Add(1)
			go func(to ExchangeState) {
				defer wg.Done()
				if _, ok := ex.terminate(to); ok {
					winners.Add(1)
				}
			}(to)
		}
		wg.Wait()
		if winners.Load() != 1 {
			t.Fatalf("%d terminal transitions won", winners.Load())
		}
	}
}

func TestExchangeDeliversOnce(t *testing.T) {
	var calls atomic.Int32
	ex := newExchange(&Request{}, func(Result) { calls.Add(1) }, time.Second)

	if !ex.deliver(Result{}) {
		t.Fatal("first delivery refused")
	}
	if ex.deliver(Result{}) {
		t.Error("second delivery accepted")
	}
	if calls.Load() != 1 {
		t.Errorf("listener ran %d times", calls.Load())
	}
}

func TestExchangeListenerPanicIsContained(t *testing.T) {
	ex := newExchange(&Request{}, func(Result) { panic("listener bug") }, time.Second)
	if !ex.deliver(Result{}) {
		t.Fatal("delivery refused")
	}
	if ex.deliver(Result{}) {
		t.Error("second delivery accepted after the listener panicked")
	}
}

func TestTerminateStopsTimer(t *testing.T) {
	ex := newExchange(&Request{}, nil, 50*time.Millisecond)
	var fired atomic.Bool
	ex.arm(func() { fired.Store(true) })
	ex.terminate(StateComplete)

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("deadline fired after the exchange completed")
	}
}
