// Package rabbitmq implements the dispatch queue on RabbitMQ with manual
// acknowledgements and a bounded prefetch window.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hupe1980/defimesh/dispatch"
)

// Options configures the RabbitMQ execution queue.
type Options struct {
	// Queue is the declared queue name.
	Queue string

	// Prefetch caps unacknowledged deliveries per consumer channel.
	Prefetch int

	Durable    bool
	AutoDelete bool
}

// Queue is a dispatch.Queue backed by a RabbitMQ queue.
type Queue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ dispatch.Queue = (*Queue)(nil)

// New dials the broker, opens a channel and declares the queue.
func New(url string, optFns ...func(o *Options)) (*Queue, error) {
	opts := Options{
		Queue:    "defimesh.executions",
		Prefetch: 8,
		Durable:  true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if url == "" {
		return nil, errors.New("amqp url must not be empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if opts.Prefetch > 0 {
		if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()

			return nil, fmt.Errorf("set rabbitmq qos: %w", err)
		}
	}

	if _, err := ch.QueueDeclare(opts.Queue, opts.Durable, opts.AutoDelete, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("declare rabbitmq queue %s: %w", opts.Queue, err)
	}

	return &Queue{conn: conn, ch: ch, queue: opts.Queue}, nil
}

// Publish sends an execution id to the queue.
func (q *Queue) Publish(ctx context.Context, executionID string) error {
	if q == nil || q.ch == nil {
		return errors.New("rabbitmq queue is not initialized")
	}

	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(executionID),
	})
	if err != nil {
		return fmt.Errorf("publish execution %s: %w", executionID, err)
	}

	return nil
}

// Consume delivers queued ids to handler from workerCount workers using
// manual acks. Deliveries are acknowledged whether or not the handler
// succeeds; a failed execution is terminal and must not loop back.
func (q *Queue) Consume(ctx context.Context, workerCount int, handler dispatch.Handler) error {
	if q == nil || q.ch == nil {
		return errors.New("rabbitmq queue is not initialized")
	}

	if workerCount <= 0 {
		workerCount = 1
	}

	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume rabbitmq queue %s: %w", q.queue, err)
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
				case msg, ok := <-msgs:
					if !ok {
						return
					}

					_ = handler(ctx, string(msg.Body))
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	return ctx.Err()
}

// Close closes the channel and the connection.
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}

	if q.ch != nil {
		_ = q.ch.Close()
	}

	if q.conn != nil {
		return q.conn.Close()
	}

	return nil
}
