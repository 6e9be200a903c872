// Package defimesh provides a high-level façade over the coordination core
// (engine, agents, stores and queue) enabling rapid construction of
// multi-agent portfolio systems. Most applications interact with this package
// by:
//  1. Creating a Mesh via New() (optionally overriding the default in-memory
//     store, cache, queue, decision oracle and market sources)
//  2. Starting executions synchronously (StartExecution) or queued
//     (EnqueueExecution plus a dispatch.Processor built on Process)
//  3. Inspecting results through the store and the execution's reasoning chain
//
// The façade delegates the control loop to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and testing;
// production deployments typically supply the MySQL store, the Redis cache and
// an LLM-backed oracle.
package defimesh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/defimesh/agent"
	"github.com/hupe1980/defimesh/cache"
	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/dispatch"
	"github.com/hupe1980/defimesh/engine"
	"github.com/hupe1980/defimesh/logging"
	"github.com/hupe1980/defimesh/market"
	"github.com/hupe1980/defimesh/oracle"
	"github.com/hupe1980/defimesh/store"
)

// Options configures the Mesh instance.
type Options struct {
	// Store is the durable system of record for portfolios, executions and
	// the audit trail.
	Store core.Store

	// Cache fronts the store for state reads.
	Cache core.Cache

	// CacheTTL bounds how long cached state entries live.
	CacheTTL time.Duration

	// Oracle makes the routing decisions of the orchestrating agent.
	Oracle oracle.Oracle

	// Market data sources consulted by the specialist agents.
	Opportunities market.OpportunitySource
	Scorer        market.RiskScorer
	Forecaster    market.Forecaster

	// Queue backs EnqueueExecution.
	Queue dispatch.Queue

	// MaxIterations bounds agent turns per execution.
	MaxIterations int

	// MinAPYDiff is the minimum APY gain that justifies a migration.
	MinAPYDiff float64

	// RiskThreshold is the risk score at or above which a destination
	// protocol is unsafe.
	RiskThreshold float64

	// ProposalAsset is analyzed when the user request names no asset.
	ProposalAsset string

	// ContextWindow is how many recent reasoning entries the oracle sees.
	ContextWindow int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the engine, the coordination
// layer and the execution queue.
type Mesh struct {
	opts   Options
	coord  *coordination.Layer
	engine *engine.Engine
	queue  dispatch.Queue
	logger logging.Logger
}

var _ dispatch.Executor = (*Mesh)(nil)

// New creates a new Mesh with optional overrides. Any unset collaborator is
// initialized with an in-memory or built-in implementation, and the six
// portfolio agents are registered on the engine.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	catalog := market.DefaultCatalog()

	opts := Options{
		Store:         store.NewInMemoryStore(),
		Cache:         cache.NewInMemoryCache(),
		CacheTTL:      5 * time.Minute,
		Oracle:        oracle.NewRules(),
		Opportunities: catalog,
		Scorer:        catalog,
		Forecaster:    catalog,
		Queue:         dispatch.NewInMemoryQueue(),
		MaxIterations: 20,
		MinAPYDiff:    0.02,
		RiskThreshold: 7.0,
		ProposalAsset: "USDC",
		ContextWindow: 5,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	coord := coordination.New(opts.Store, func(o *coordination.Options) {
		o.Cache = opts.Cache
		o.CacheTTL = opts.CacheTTL
		o.Logger = opts.Logger
	})

	eng := engine.New(coord, func(o *engine.Options) {
		o.MaxIterations = opts.MaxIterations
		o.Logger = opts.Logger
	})

	err := eng.Register(
		agent.NewOrchestratorAgent(coord, opts.Oracle, func(o *agent.OrchestratorOptions) {
			o.ContextWindow = opts.ContextWindow
			o.MaxIterations = opts.MaxIterations
			o.RiskThreshold = opts.RiskThreshold
			o.Logger = opts.Logger
		}),
		agent.NewStrategyAgent(coord, opts.Opportunities, func(o *agent.StrategyOptions) {
			o.MinAPYDiff = opts.MinAPYDiff
			o.DefaultAsset = opts.ProposalAsset
			o.Logger = opts.Logger
		}),
		agent.NewRiskAgent(coord, opts.Scorer, func(o *agent.RiskOptions) {
			o.Threshold = opts.RiskThreshold
			o.Logger = opts.Logger
		}),
		agent.NewForecastAgent(coord, opts.Forecaster, func(o *agent.ForecastOptions) {
			o.DefaultAsset = opts.ProposalAsset
			o.Logger = opts.Logger
		}),
		agent.NewProductivityAgent(coord, func(o *agent.ProductivityOptions) {
			o.Logger = opts.Logger
		}),
		agent.NewValidationAgent(coord, func(o *agent.ValidationOptions) {
			o.Logger = opts.Logger
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}

	return &Mesh{
		opts:   opts,
		coord:  coord,
		engine: eng,
		queue:  opts.Queue,
		logger: opts.Logger,
	}, nil
}

// Coordination returns the coordination layer, the read/write surface over
// the store and cache.
func (m *Mesh) Coordination() *coordination.Layer {
	return m.coord
}

// Queue returns the execution queue backing EnqueueExecution.
func (m *Mesh) Queue() dispatch.Queue {
	return m.queue
}

// StartExecution runs a request through the control loop to completion and
// returns the final state.
func (m *Mesh) StartExecution(ctx context.Context, req dispatch.Request) (*core.ExecutionState, error) {
	state, err := m.initExecution(ctx, req)
	if err != nil {
		return nil, err
	}

	return m.engine.Run(ctx, state)
}

// EnqueueExecution persists a new execution and publishes its id for
// asynchronous processing. The returned id can be polled immediately.
func (m *Mesh) EnqueueExecution(ctx context.Context, req dispatch.Request) (string, error) {
	state, err := m.initExecution(ctx, req)
	if err != nil {
		return "", err
	}

	if err := m.queue.Publish(ctx, state.ExecutionID); err != nil {
		return "", fmt.Errorf("queue execution %s: %w", state.ExecutionID, err)
	}

	return state.ExecutionID, nil
}

// Process loads a previously initialized execution and runs it to
// completion. It implements dispatch.Executor so a dispatch.Processor can
// drive the mesh from a queue.
func (m *Mesh) Process(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	state, err := m.coord.ReadState(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", executionID, err)
	}

	return m.engine.Run(ctx, state)
}

// CancelExecution stops an active run. It reports whether the id was active.
func (m *Mesh) CancelExecution(executionID string) bool {
	return m.engine.Cancel(executionID)
}

// initExecution resolves the portfolio for the request's wallet and persists
// a fresh execution state. A failing portfolio lookup degrades to a generated
// id rather than refusing the run.
func (m *Mesh) initExecution(ctx context.Context, req dispatch.Request) (*core.ExecutionState, error) {
	portfolioID, err := m.coord.GetOrCreatePortfolio(ctx, core.Portfolio{
		WalletAddress: req.WalletAddress,
		ChainID:       req.ChainID,
	})
	if err != nil {
		portfolioID = uuid.NewString()
		m.logger.Warn("portfolio lookup failed, continuing with a generated id",
			"wallet_address", req.WalletAddress, "portfolio_id", portfolioID, "error", err)
	}

	state := core.NewExecutionState(portfolioID, req.UserInput, req.WalletAddress, req.ChainID)
	for k, v := range req.Balances {
		state.Balances[k] = v
	}
	for k, v := range req.Positions {
		state.Positions[k] = v
	}

	if _, err := m.coord.InitExecution(ctx, state); err != nil {
		return nil, fmt.Errorf("init execution: %w", err)
	}

	return state, nil
}
