// Package redis provides the Redis-backed execution-state cache. States are
// stored as JSON blobs under a configurable key prefix with per-entry TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/defimesh/core"
)

// Options configures the Redis cache connection.
type Options struct {
	Password  string
	DB        int
	KeyPrefix string
}

// Cache implements core.Cache on top of a Redis instance.
type Cache struct {
	client *redis.Client
	prefix string
}

var _ core.Cache = (*Cache)(nil)

// New connects to Redis at the given address and verifies connectivity.
func New(addr string, optFns ...func(o *Options)) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis address must not be empty")
	}

	opts := Options{
		KeyPrefix: "defimesh:state:",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client, prefix: opts.KeyPrefix}, nil
}

// GetState returns the cached state for an execution id.
func (c *Cache) GetState(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	blob, err := c.client.Get(ctx, c.key(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("cached state %s: %w", executionID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("get cached state: %w", err)
	}

	state := &core.ExecutionState{}
	if err := json.Unmarshal(blob, state); err != nil {
		return nil, fmt.Errorf("decode cached state: %w", err)
	}
	return state, nil
}

// SetState stores the state as JSON. A positive ttl sets an expiry; zero or
// negative keeps the key until it is overwritten or deleted.
func (c *Cache) SetState(ctx context.Context, state *core.ExecutionState, ttl time.Duration) error {
	if state == nil || state.ExecutionID == "" {
		return fmt.Errorf("state with execution id required")
	}

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if ttl > 0 {
		if err := c.client.SetEx(ctx, c.key(state.ExecutionID), blob, ttl).Err(); err != nil {
			return fmt.Errorf("set cached state: %w", err)
		}
		return nil
	}
	if err := c.client.Set(ctx, c.key(state.ExecutionID), blob, 0).Err(); err != nil {
		return fmt.Errorf("set cached state: %w", err)
	}
	return nil
}

// DeleteState removes the cached entry for an execution id.
func (c *Cache) DeleteState(ctx context.Context, executionID string) error {
	if err := c.client.Del(ctx, c.key(executionID)).Err(); err != nil {
		return fmt.Errorf("delete cached state: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) key(executionID string) string { return c.prefix + executionID }
