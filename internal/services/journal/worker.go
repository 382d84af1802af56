package journal

import (
	"context"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/pkg/client"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const recordTimeout = 5 * time.Second

// Worker writes journal records off the exchange path. It implements
// client.Observer, so the engine never waits on the database.
type Worker struct {
	service *Service
	tasks   chan *models.ExchangeRecord
	wg      sync.WaitGroup

	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

var _ client.Observer = (*Worker)(nil)

// NewWorker creates a journal worker with the specified pool size
func NewWorker(service *Service, poolSize, bufferSize int) *Worker {
	if poolSize <= 0 {
		poolSize = 2
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	w := &Worker{
		service: service,
		tasks:   make(chan *models.ExchangeRecord, bufferSize),
	}

	for range poolSize {
		w.wg.Add(1)
		go w.run()
	}

	return w
}

// ExchangeCompleted queues a record for the finished exchange
func (w *Worker) ExchangeCompleted(info client.ExchangeInfo) {
	w.Submit(recordFrom(info))
}

// Submit queues record, dropping it when the buffer is full
func (w *Worker) Submit(record *models.ExchangeRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		fiberlog.Warnf("[%s] Journal worker stopped, dropping record", record.ExchangeID)
		return
	}

	select {
	case w.tasks <- record:
	default:
		fiberlog.Warnf("[%s] Journal buffer full, dropping record", record.ExchangeID)
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	for record := range w.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := w.service.Record(ctx, record); err != nil {
			fiberlog.Errorf("[%s] Failed to journal exchange: %v", record.ExchangeID, err)
		}
		cancel()
	}
}

// Stop flushes queued records and waits for the workers to exit
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		close(w.tasks)
		w.mu.Unlock()

		w.wg.Wait()
	})
}

func recordFrom(info client.ExchangeInfo) *models.ExchangeRecord {
	record := &models.ExchangeRecord{
		ExchangeID:   info.ID,
		Destination:  info.Destination,
		Method:       info.Method,
		Path:         info.Path,
		Status:       info.Status,
		Succeeded:    info.Succeeded,
		FailureKind:  info.FailureKind,
		BodyMode:     info.BodyMode,
		ContentBytes: info.ContentBytes,
		Fragments:    int(info.Fragments),
		Reused:       info.Reused,
		LatencyMs:    info.Duration.Milliseconds(),
		CreatedAt:    time.Now(),
	}
	if info.Failure != nil {
		record.ErrorMessage = info.Failure.Error()
	}
	return record
}
