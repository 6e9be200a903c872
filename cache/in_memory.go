// Package cache provides best-effort execution-state caches. A cache is a
// read accelerator in front of the authoritative store and may lose entries
// at any time; callers must treat misses and errors as recoverable.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/defimesh/core"
)

// InMemoryCacheOptions configures the in-memory cache.
type InMemoryCacheOptions struct {
	// Now returns the current time. Overridable for tests.
	Now func() time.Time
}

// InMemoryCache keeps execution states in a process-local map with per-entry
// expiry. Entries are deep-copied on both writes and reads so callers never
// share mutable state with the cache.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]inMemoryEntry
	now     func() time.Time
}

type inMemoryEntry struct {
	state     *core.ExecutionState
	expiresAt time.Time
}

var _ core.Cache = (*InMemoryCache)(nil)

// NewInMemoryCache creates a new in-memory execution-state cache.
func NewInMemoryCache(optFns ...func(o *InMemoryCacheOptions)) *InMemoryCache {
	opts := InMemoryCacheOptions{
		Now: time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryCache{
		entries: make(map[string]inMemoryEntry),
		now:     opts.Now,
	}
}

// GetState returns the cached state for an execution id. Expired entries are
// dropped and reported as misses.
func (c *InMemoryCache) GetState(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[executionID]
	if !ok {
		return nil, fmt.Errorf("cached state %s: %w", executionID, core.ErrNotFound)
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, executionID)
		return nil, fmt.Errorf("cached state %s: %w", executionID, core.ErrNotFound)
	}
	return e.state.Clone(), nil
}

// SetState stores a copy of the state under its execution id. A non-positive
// ttl keeps the entry until it is overwritten or deleted.
func (c *InMemoryCache) SetState(ctx context.Context, state *core.ExecutionState, ttl time.Duration) error {
	if state == nil || state.ExecutionID == "" {
		return fmt.Errorf("state with execution id required")
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[state.ExecutionID] = inMemoryEntry{state: state.Clone(), expiresAt: expiresAt}
	return nil
}

// DeleteState removes the entry for an execution id. Deleting a missing
// entry is not an error.
func (c *InMemoryCache) DeleteState(ctx context.Context, executionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, executionID)
	return nil
}
