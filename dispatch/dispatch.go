package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/defimesh/core"
)

// Request describes one portfolio run to start: the user's instruction plus
// the wallet snapshot the agents will reason over. Balances and Positions are
// optional; a zero request still produces a valid (empty) run.
type Request struct {
	UserInput     string                   `json:"user_input"`
	WalletAddress string                   `json:"wallet_address"`
	ChainID       int64                    `json:"chain_id"`
	Balances      map[string]float64       `json:"balances,omitempty"`
	Positions     map[string]core.Position `json:"positions,omitempty"`
}

// Handler processes one queued execution id.
type Handler func(ctx context.Context, executionID string) error

// Producer enqueues execution ids for asynchronous processing. The execution
// must already be persisted before its id is published, so a consumer on
// another process can load it.
type Producer interface {
	Publish(ctx context.Context, executionID string) error
	Close() error
}

// Consumer delivers queued execution ids to a handler from workerCount
// concurrent workers. Consume blocks until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends of an execution queue.
type Queue interface {
	Producer
	Consumer
}

// InMemoryQueueOptions configures an InMemoryQueue.
type InMemoryQueueOptions struct {
	// BufferSize caps how many ids may sit unconsumed before Publish blocks.
	BufferSize int
}

// InMemoryQueue is a channel-backed Queue for tests and single-process
// deployments.
type InMemoryQueue struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a buffered in-memory queue.
func NewInMemoryQueue(optFns ...func(o *InMemoryQueueOptions)) *InMemoryQueue {
	opts := InMemoryQueueOptions{
		BufferSize: 64,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}

	return &InMemoryQueue{ch: make(chan string, opts.BufferSize)}
}

// Publish enqueues an execution id. It fails once the queue is closed and
// respects ctx while the buffer is full.
func (q *InMemoryQueue) Publish(ctx context.Context, executionID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	if closed {
		return errors.New("queue is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- executionID:
		return nil
	}
}

// Consume runs workerCount workers over the queue until ctx is done or the
// queue is closed and drained.
func (q *InMemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case executionID, ok := <-q.ch:
					if !ok {
						return
					}

					_ = handler(ctx, executionID)
				}
			}
		}()
	}

	wg.Wait()

	return ctx.Err()
}

// Close closes the queue. Pending ids already in the buffer are still
// delivered; further publishes fail.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.ch)
		q.closed = true
	}

	return nil
}
