// Package queue carries completion jobs to per-provider workers.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop after a queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is one provider-scoped FIFO of jobs.
type Queue interface {
	Name() string
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available or ctx is done.
	Pop(ctx context.Context) (Job, error)
}

// MemoryQueue is an in-process FIFO backed by a buffered channel.
type MemoryQueue struct {
	name string
	jobs chan Job
	done chan struct{}
	once sync.Once
}

// NewMemoryQueue creates a queue holding up to size pending jobs.
func NewMemoryQueue(name string, size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		name: name,
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string {
	return q.name
}

// Push blocks while the queue is full.
func (q *MemoryQueue) Push(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	case q.jobs <- job:
		return nil
	}
}

// Pop returns the oldest job.
func (q *MemoryQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		select {
		case job := <-q.jobs:
			return job, nil
		default:
			return Job{}, ErrClosed
		}
	}
}

// Len returns the number of pending jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close rejects further pushes. Pending jobs can still be popped.
func (q *MemoryQueue) Close() {
	q.once.Do(func() { close(q.done) })
}
