package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/defimesh/core"
)

func TestInMemoryCache_SetGet(t *testing.T) {
	cache := NewInMemoryCache()
	state := core.NewExecutionState("portfolio-1", "rebalance", "0xabc", 1)
	state.ExecutionID = "exec-1"

	require.NoError(t, cache.SetState(context.Background(), state, time.Minute))

	got, err := cache.GetState(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "portfolio-1", got.PortfolioID)
	assert.Equal(t, "rebalance", got.UserInput)

	// The cache must hand out copies, not aliases.
	got.UserInput = "mutated"
	again, err := cache.GetState(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "rebalance", again.UserInput)
}

func TestInMemoryCache_Miss(t *testing.T) {
	cache := NewInMemoryCache()

	_, err := cache.GetState(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewInMemoryCache(func(o *InMemoryCacheOptions) {
		o.Now = func() time.Time { return now }
	})

	state := core.NewExecutionState("portfolio-1", "rebalance", "0xabc", 1)
	state.ExecutionID = "exec-1"
	require.NoError(t, cache.SetState(context.Background(), state, 300*time.Second))

	now = now.Add(299 * time.Second)
	_, err := cache.GetState(context.Background(), "exec-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = cache.GetState(context.Background(), "exec-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryCache_NoExpiryWithZeroTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewInMemoryCache(func(o *InMemoryCacheOptions) {
		o.Now = func() time.Time { return now }
	})

	state := core.NewExecutionState("portfolio-1", "rebalance", "0xabc", 1)
	state.ExecutionID = "exec-1"
	require.NoError(t, cache.SetState(context.Background(), state, 0))

	now = now.Add(24 * time.Hour)
	_, err := cache.GetState(context.Background(), "exec-1")
	assert.NoError(t, err)
}

func TestInMemoryCache_Delete(t *testing.T) {
	cache := NewInMemoryCache()
	state := core.NewExecutionState("portfolio-1", "rebalance", "0xabc", 1)
	state.ExecutionID = "exec-1"
	require.NoError(t, cache.SetState(context.Background(), state, time.Minute))

	require.NoError(t, cache.DeleteState(context.Background(), "exec-1"))
	_, err := cache.GetState(context.Background(), "exec-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, cache.DeleteState(context.Background(), "exec-1"))
}

func TestInMemoryCache_RejectsStateWithoutID(t *testing.T) {
	cache := NewInMemoryCache()
	state := core.NewExecutionState("portfolio-1", "rebalance", "0xabc", 1)

	err := cache.SetState(context.Background(), state, time.Minute)
	assert.Error(t, err)
}
