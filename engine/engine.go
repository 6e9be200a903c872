package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
)

// Options configures the engine.
type Options struct {
	// MaxIterations bounds the number of agent turns per execution. When
	// the bound is hit the run terminates as failed instead of looping
	// forever.
	MaxIterations int

	Logger logging.Logger
}

// Engine drives executions through the registered agents.
//
// Contract:
//   - The state is persisted through the coordination layer after every
//     agent turn and finalized with a terminal status when the loop ends.
//   - Agent errors, unknown routes, routing anomalies and the iteration
//     bound all terminate the run as failed with the cause appended to the
//     state's error list; none of them crash the loop.
//   - Cancelling the context stops the loop at the next turn boundary and
//     the terminal state is still written on a best-effort basis.
type Engine struct {
	coord         *coordination.Layer
	logger        logging.Logger
	maxIterations int

	mu     sync.RWMutex
	agents map[string]core.Agent

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// New creates an engine on top of the given coordination layer.
func New(coord *coordination.Layer, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxIterations: 20,
		Logger:        logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		coord:         coord,
		logger:        opts.Logger,
		maxIterations: opts.MaxIterations,
		agents:        make(map[string]core.Agent),
		active:        make(map[string]context.CancelFunc),
	}
}

// Register adds agents to the routing table. Route ids must be members of
// the known routing set and unique.
func (e *Engine) Register(agents ...core.Agent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range agents {
		routeID := a.RouteID()
		if !core.KnownRoute(routeID) {
			return fmt.Errorf("%w: %s", core.ErrUnknownAgent, routeID)
		}
		if _, exists := e.agents[routeID]; exists {
			return fmt.Errorf("route %s is already registered", routeID)
		}
		e.agents[routeID] = a
	}
	return nil
}

// Cancel stops the running execution with the given id. It reports whether
// such an execution was active.
func (e *Engine) Cancel(executionID string) bool {
	e.activeMu.Lock()
	cancel, ok := e.active[executionID]
	e.activeMu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Run drives one execution until a terminal condition and returns the final
// state. The state must already be registered with the coordination layer.
//
// Controlled failures (agent errors, routing anomalies, the iteration bound)
// finalize the run as failed and return a nil error; the causes are on the
// state's error list. Run returns a non-nil error only for cancellation and
// for authoritative store write failures.
func (e *Engine) Run(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	if state == nil || state.ExecutionID == "" {
		return nil, errors.New("state with execution id required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.activeMu.Lock()
	e.active[state.ExecutionID] = cancel
	e.activeMu.Unlock()
	defer func() {
		e.activeMu.Lock()
		delete(e.active, state.ExecutionID)
		e.activeMu.Unlock()
	}()

	e.logger.Info("execution started", "execution_id", state.ExecutionID, "portfolio_id", state.PortfolioID)

	var writeErr error
	cancelled := false
	lastWorker := ""

	for turn := 0; ; turn++ {
		if runCtx.Err() != nil {
			cancelled = true
			state.AppendError("execution cancelled")
			break
		}

		route := state.NextAgent
		if route == core.RouteEnd {
			break
		}

		if turn >= e.maxIterations {
			state.AppendError(fmt.Sprintf("max iterations reached (%d)", e.maxIterations))
			e.logger.Warn("iteration bound hit", "execution_id", state.ExecutionID, "max_iterations", e.maxIterations)
			break
		}

		if route != core.RouteOrchestrator && route == lastWorker {
			state.AppendError(fmt.Sprintf("routing anomaly: %s scheduled twice in a row", route))
			break
		}

		agent, err := e.agent(route)
		if err != nil {
			state.AppendError(fmt.Sprintf("no agent registered for route %s", route))
			break
		}

		next, err := agent.Execute(runCtx, state)
		if err != nil {
			if runCtx.Err() != nil {
				cancelled = true
				state.AppendError("execution cancelled")
				break
			}
			state.AppendError(fmt.Sprintf("%s failed: %v", agent.Name(), err))
			e.logger.Error("agent failed", "execution_id", state.ExecutionID, "agent", agent.Name(), "error", err)
			break
		}
		state = next

		if err := e.coord.WriteState(runCtx, state); err != nil {
			if runCtx.Err() != nil {
				cancelled = true
				state.AppendError("execution cancelled")
				break
			}
			state.AppendError(fmt.Sprintf("state write failed: %v", err))
			writeErr = err
			break
		}

		if route != core.RouteOrchestrator {
			lastWorker = route
		}
	}

	status := core.StatusCompleted
	if len(state.ErrorMessages) > 0 {
		status = core.StatusFailed
	}

	finalCtx := runCtx
	if runCtx.Err() != nil {
		finalCtx = context.WithoutCancel(ctx)
	}
	if err := e.coord.FinalizeExecution(finalCtx, state, status); err != nil {
		e.logger.Error("finalize failed", "execution_id", state.ExecutionID, "error", err)
		if writeErr == nil {
			writeErr = err
		}
	}

	e.logger.Info("execution finished",
		"execution_id", state.ExecutionID,
		"status", status,
		"iterations", state.IterationCount,
		"errors", len(state.ErrorMessages),
	)

	if cancelled {
		return state, context.Cause(runCtx)
	}
	return state, writeErr
}

func (e *Engine) agent(routeID string) (core.Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	agent, ok := e.agents[routeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownAgent, routeID)
	}
	return agent, nil
}
