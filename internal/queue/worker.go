package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neoclaw-ai/completions/internal/logging"
)

const popRetryDelay = time.Second

// Handler processes one job.
type Handler interface {
	HandleJob(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

// HandleJob calls f.
func (f HandlerFunc) HandleJob(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Worker drains one queue with a fixed number of goroutines. A failing or
// panicking job is logged and never stops the worker.
type Worker struct {
	queue       Queue
	handler     Handler
	concurrency int

	wg      sync.WaitGroup
	stateMu sync.Mutex
	started bool
}

// NewWorker creates a worker running concurrency jobs at a time.
func NewWorker(queue Queue, handler Handler, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{queue: queue, handler: handler, concurrency: concurrency}
}

// Start begins draining the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil {
		return errors.New("worker is required")
	}
	if w.queue == nil {
		return errors.New("queue is required")
	}
	if w.handler == nil {
		return errors.New("handler is required")
	}

	w.stateMu.Lock()
	if w.started {
		w.stateMu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.stateMu.Unlock()

	for range w.concurrency {
		w.wg.Add(1)
		go w.run(ctx)
	}
	return nil
}

// Wait blocks until every worker goroutine has exited.
func (w *Worker) Wait() {
	if w == nil {
		return
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	logger := logging.Logger().With("queue", w.queue.Name())
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			logger.Error("pop job failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}

		started := time.Now()
		if err := w.handle(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				logger.Warn("job interrupted by shutdown", "job_id", job.ID)
				return
			}
			logger.Error("job failed", "job_id", job.ID, "model", job.Model, "duration", time.Since(started), "err", err)
			continue
		}
		logger.Info("job complete", "job_id", job.ID, "model", job.Model, "duration", time.Since(started))
	}
}

func (w *Worker) handle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return w.handler.HandleJob(ctx, job)
}
