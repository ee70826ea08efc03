package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPollTimeout = time.Second

// RedisQueue stores jobs in a redis list: LPUSH to enqueue, BRPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	name   string
	// PollTimeout bounds each BRPOP so cancellation is noticed promptly.
	PollTimeout time.Duration
}

// NewRedisQueue uses the list key name on client.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name, PollTimeout: defaultPollTimeout}
}

// Name returns the list key.
func (q *RedisQueue) Name() string {
	return q.name
}

// Push appends job to the head of the list.
func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	raw, err := Encode(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("push job %s to %s: %w", job.ID, q.name, err)
	}
	return nil
}

// Pop takes the oldest job from the tail of the list.
func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	timeout := q.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		result, err := q.client.BRPop(ctx, timeout, q.name).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("pop job from %s: %w", q.name, err)
		}
		// BRPOP replies with [key, value].
		if len(result) != 2 {
			return Job{}, fmt.Errorf("pop job from %s: unexpected reply %v", q.name, result)
		}
		return Decode([]byte(result[1]))
	}
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", q.name, err)
	}
	return n, nil
}
