package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/provider"
)

// Dispatcher routes jobs to the queue owned by each provider.
type Dispatcher struct {
	queues map[provider.Kind]Queue
}

// NewDispatcher requires one distinct queue for every provider kind.
func NewDispatcher(queues map[provider.Kind]Queue) (*Dispatcher, error) {
	owned := make(map[provider.Kind]Queue, len(queues))
	names := map[string]provider.Kind{}
	var errs []error
	for _, kind := range provider.Kinds() {
		q, ok := queues[kind]
		if !ok || q == nil {
			errs = append(errs, fmt.Errorf("no queue for provider %s", kind))
			continue
		}
		if other, taken := names[q.Name()]; taken {
			errs = append(errs, fmt.Errorf("providers %s and %s share queue %q", other, kind, q.Name()))
			continue
		}
		names[q.Name()] = kind
		owned[kind] = q
	}
	for kind := range queues {
		if _, err := provider.ParseKind(string(kind)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Dispatcher{queues: owned}, nil
}

// Enqueue pushes job onto kind's queue.
func (d *Dispatcher) Enqueue(ctx context.Context, kind provider.Kind, job Job) error {
	q, ok := d.queues[kind]
	if !ok {
		return fmt.Errorf("no queue for provider %s", kind)
	}
	if err := q.Push(ctx, job); err != nil {
		return err
	}
	logging.Logger().Info("job enqueued", "provider", kind, "queue", q.Name(), "job_id", job.ID, "model", job.Model)
	return nil
}

// Queue returns the queue owned by kind.
func (d *Dispatcher) Queue(kind provider.Kind) (Queue, bool) {
	q, ok := d.queues[kind]
	return q, ok
}
