package client

import (
	"sync"
	"testing"
	"time"
)

func TestExecutorRunsTasks(t *testing.T) {
	e := newExecutor(4, 16)
	defer e.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		e.Submit(wg.Done)
	}
	waitGroup(t, &wg)
}

func TestExecutorOverflowNeverBlocks(t *testing.T) {
	e := newExecutor(1, 1)
	defer e.Stop()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	e.Submit(func() {
		defer wg.Done()
		<-release
	})

	// The only worker is busy and the queue holds one task; the rest overflow.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			e.Submit(wg.Done)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a saturated executor")
	}
	close(release)
	waitGroup(t, &wg)

	if e.Overflow() == 0 {
		t.Error("expected tasks to overflow the queue")
	}
}

func TestExecutorAfterStop(t *testing.T) {
	e := newExecutor(2, 2)
	e.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	e.Submit(wg.Done)
	waitGroup(t, &wg)
}

func TestExecutorRecoversPanics(t *testing.T) {
	e := newExecutor(1, 4)
	defer e.Stop()

	e.Submit(func() { panic("task bug") })
	var wg sync.WaitGroup
	wg.Add(1)
	e.Submit(wg.Done)
	waitGroup(t, &wg)
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}
}
