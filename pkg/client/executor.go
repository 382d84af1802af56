package client

import (
	"sync"
	"sync/atomic"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// executor is the bounded worker pool that drives connection processing and
// listener callbacks. Submit never blocks: when the queue is full, or after
// Stop, the task runs on its own goroutine so no exchange is ever dropped.
type executor struct {
	tasks    chan func()
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	quit     chan struct{}
	stopOnce sync.Once

	overflow atomic.Int64
}

// newExecutor starts poolSize workers sharing a queue of bufferSize tasks
func newExecutor(poolSize, bufferSize int) *executor {
	e := &executor{
		tasks: make(chan func(), bufferSize),
		quit:  make(chan struct{}),
	}

	for range poolSize {
		e.wg.Add(1)
		go e.run()
	}

	return e
}

// Submit schedules task on a worker
func (e *executor) Submit(task func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped {
		go runTask(task)
		return
	}

	select {
	case e.tasks <- task:
	default:
		n := e.overflow.Add(1)
		fiberlog.Debugf("[EXECUTOR] Task queue full, running task on overflow goroutine (%d so far)", n)
		go runTask(task)
	}
}

// Overflow returns how many tasks ran outside the worker pool
func (e *executor) Overflow() int64 {
	return e.overflow.Load()
}

func (e *executor) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.quit:
			return
		case task := <-e.tasks:
			runTask(task)
		}
	}
}

// Stop waits for the workers to exit and hands queued tasks to goroutines
func (e *executor) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()

		close(e.quit)
		e.wg.Wait()

		for {
			select {
			case task := <-e.tasks:
				go runTask(task)
			default:
				return
			}
		}
	})
}

func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			fiberlog.Errorf("[EXECUTOR] Task panicked: %v", r)
		}
	}()
	task()
}
