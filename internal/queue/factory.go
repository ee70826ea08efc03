package queue

import (
	"context"
	"fmt"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/redis/go-redis/v9"
)

// NewFromConfig builds one queue per provider on the configured backend. The
// returned close function releases the backend connection.
func NewFromConfig(ctx context.Context, cfg *config.Config) (map[provider.Kind]Queue, func() error, error) {
	queues := make(map[provider.Kind]Queue, len(provider.Kinds()))
	switch cfg.Queue.Backend {
	case config.QueueBackendMemory, "":
		memQueues := make([]*MemoryQueue, 0, len(provider.Kinds()))
		for _, kind := range provider.Kinds() {
			q := NewMemoryQueue(cfg.QueueName(string(kind)), cfg.Queue.Size)
			memQueues = append(memQueues, q)
			queues[kind] = q
		}
		closeAll := func() error {
			for _, q := range memQueues {
				q.Close()
			}
			return nil
		}
		return queues, closeAll, nil

	case config.QueueBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Queue.Redis.Addr, err)
		}
		for _, kind := range provider.Kinds() {
			queues[kind] = NewRedisQueue(client, cfg.QueueName(string(kind)))
		}
		return queues, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}
