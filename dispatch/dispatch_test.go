package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_PublishConsume(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, "exec-1"))
	require.NoError(t, q.Publish(ctx, "exec-2"))
	require.NoError(t, q.Publish(ctx, "exec-3"))
	require.NoError(t, q.Close())

	var (
		mu   sync.Mutex
		seen []string
	)

	err := q.Consume(ctx, 2, func(ctx context.Context, executionID string) error {
		mu.Lock()
		seen = append(seen, executionID)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err, "a closed and drained queue ends consumption cleanly")

	assert.ElementsMatch(t, []string{"exec-1", "exec-2", "exec-3"}, seen)
}

func TestInMemoryQueue_PublishAfterClose(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), "exec-1")
	assert.ErrorContains(t, err, "closed")
}

func TestInMemoryQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := NewInMemoryQueue()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- q.Consume(ctx, 1, func(ctx context.Context, executionID string) error {
			return nil
		})
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestInMemoryQueue_CloseIsIdempotent(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
}

func TestInMemoryQueue_BufferSizeOption(t *testing.T) {
	q := NewInMemoryQueue(func(o *InMemoryQueueOptions) {
		o.BufferSize = 1
	})
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, "exec-1"))

	// The buffer is full, so a publish with a cancelled context must give up.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, q.Publish(cancelled, "exec-2"), context.Canceled)
}
