package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
)

// Executor runs one previously initialized execution to completion and
// returns its final state.
type Executor interface {
	Process(ctx context.Context, executionID string) (*core.ExecutionState, error)
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	// WorkerCount bounds how many executions run concurrently.
	WorkerCount int
	Logger      logging.Logger
}

// Processor consumes queued execution ids and hands each to the Executor. A
// failed execution is terminal and is not redelivered; the loop itself never
// stops on a single bad id.
type Processor struct {
	executor    Executor
	consumer    Consumer
	workerCount int
	logger      logging.Logger
}

// NewProcessor creates a processor over the given executor and consumer.
func NewProcessor(executor Executor, consumer Consumer, optFns ...func(o *ProcessorOptions)) *Processor {
	opts := ProcessorOptions{
		WorkerCount: 4,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}

	return &Processor{
		executor:    executor,
		consumer:    consumer,
		workerCount: opts.WorkerCount,
		logger:      opts.Logger,
	}
}

// Start blocks consuming the queue until ctx is done.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.executor == nil {
		return errors.New("processor requires a consumer and an executor")
	}

	p.logger.Info("processor started", "workers", p.workerCount)

	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, executionID string) error {
	state, err := p.executor.Process(ctx, executionID)
	if err != nil {
		p.logger.Error("execution aborted", "execution_id", executionID, "error", err)
		return fmt.Errorf("process execution %s: %w", executionID, err)
	}

	p.logger.Info("execution processed",
		"execution_id", executionID,
		"iterations", state.IterationCount,
		"next_agent", state.NextAgent,
		"errors", len(state.ErrorMessages),
	)

	return nil
}
