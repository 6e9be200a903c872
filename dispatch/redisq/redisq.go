// Package redisq implements the dispatch queue on a Redis list using LPUSH
// and blocking BRPOP.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/defimesh/dispatch"
)

// Options configures the Redis execution queue.
type Options struct {
	Password string
	DB       int

	// Queue is the list key execution ids are pushed to.
	Queue string

	// PopTimeout bounds each blocking pop so workers notice cancellation
	// between messages.
	PopTimeout time.Duration
}

// Queue is a dispatch.Queue backed by a Redis list.
type Queue struct {
	client     *redis.Client
	queue      string
	popTimeout time.Duration
}

var _ dispatch.Queue = (*Queue)(nil)

// New connects to Redis at addr and verifies the connection.
func New(addr string, optFns ...func(o *Options)) (*Queue, error) {
	opts := Options{
		Queue:      "defimesh:executions",
		PopTimeout: 5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if addr == "" {
		return nil, errors.New("redis address must not be empty")
	}

	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Queue{
		client:     client,
		queue:      opts.Queue,
		popTimeout: opts.PopTimeout,
	}, nil
}

// Publish pushes an execution id onto the list.
func (q *Queue) Publish(ctx context.Context, executionID string) error {
	if err := q.client.LPush(ctx, q.queue, executionID).Err(); err != nil {
		return fmt.Errorf("publish execution %s: %w", executionID, err)
	}

	return nil
}

// Consume blocks workerCount workers on BRPOP until ctx is done or a worker
// hits an unrecoverable queue error. Handler failures are terminal for the
// execution and do not requeue the id.
func (q *Queue) Consume(ctx context.Context, workerCount int, handler dispatch.Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	errCh := make(chan error, workerCount)

	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}

				vals, err := q.client.BRPop(ctx, q.popTimeout, q.queue).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}

					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}

					errCh <- fmt.Errorf("pop execution: %w", err)

					return
				}

				if len(vals) != 2 {
					continue
				}

				_ = handler(ctx, vals[1])
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close releases the underlying client.
func (q *Queue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}

	return q.client.Close()
}
