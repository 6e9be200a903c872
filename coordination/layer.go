// Package coordination provides the shared read/write surface that all
// agents use to exchange execution state. It layers a best-effort cache over
// the authoritative store and funnels every audit record through one place.
package coordination

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/defimesh/cache"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
)

// Options configures the coordination layer.
type Options struct {
	// Cache accelerates state reads. Defaults to an in-memory cache.
	Cache core.Cache

	// CacheTTL bounds how long a cached state entry survives without a
	// refresh. Defaults to 300 seconds.
	CacheTTL time.Duration

	Logger logging.Logger
}

// Layer mediates all execution-state access between agents and the storage
// backends.
//
// Contract:
//   - Reads prefer the cache and fall back to the store; a store hit
//     repopulates the cache.
//   - State writes go to the store first and are mirrored into the cache on
//     a best-effort basis. Store write failures propagate to the caller.
//   - Audit records (decisions, reasoning, risk, transactions, balances) are
//     fire-and-forget: failures are logged and never propagated.
//   - An execution whose initial store insert failed runs degraded: later
//     state writes for it skip the store and only refresh the cache.
type Layer struct {
	store    core.Store
	cache    core.Cache
	cacheTTL time.Duration
	logger   logging.Logger

	mu       sync.Mutex
	degraded map[string]struct{}
}

// New creates a coordination layer over the given authoritative store.
func New(store core.Store, optFns ...func(o *Options)) *Layer {
	opts := Options{
		CacheTTL: 300 * time.Second,
		Logger:   logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Cache == nil {
		opts.Cache = cache.NewInMemoryCache()
	}

	return &Layer{
		store:    store,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   opts.Logger,
		degraded: make(map[string]struct{}),
	}
}

// InitExecution registers a fresh execution with the store and primes the
// cache. When the store insert fails the execution still starts: it gets a
// locally generated id and runs degraded, so one storage outage never blocks
// a run.
func (l *Layer) InitExecution(ctx context.Context, state *core.ExecutionState) (string, error) {
	rec := core.ExecutionRecord{
		ExecutionID: state.ExecutionID,
		PortfolioID: state.PortfolioID,
		State:       state,
		Status:      core.StatusRunning,
	}

	id, err := l.store.InsertExecution(ctx, rec)
	if err != nil {
		id = uuid.NewString()
		state.ExecutionID = id
		l.markDegraded(id)
		l.logger.Warn("store unavailable, execution runs degraded", "execution_id", id, "error", err)
	} else {
		state.ExecutionID = id
	}

	l.refreshCache(ctx, state)
	return id, nil
}

// ReadState returns the current state for an execution id, preferring the
// cache. Cache failures are tolerated; a miss falls through to the store and
// a store hit repopulates the cache.
func (l *Layer) ReadState(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	state, err := l.cache.GetState(ctx, executionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		l.logger.Warn("cache read failed, falling back to store", "execution_id", executionID, "error", err)
	}

	rec, err := l.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	l.refreshCache(ctx, rec.State)
	return rec.State, nil
}

// WriteState persists the state after an agent turn. The store write is
// authoritative and its failure propagates; the cache refresh is best
// effort. Degraded executions skip the store entirely.
func (l *Layer) WriteState(ctx context.Context, state *core.ExecutionState) error {
	state.UpdatedAt = time.Now().UTC()

	if !l.isDegraded(state.ExecutionID) {
		if err := l.store.UpdateExecution(ctx, state.ExecutionID, state, core.StatusRunning); err != nil {
			return err
		}
	}

	l.refreshCache(ctx, state)
	return nil
}

// FinalizeExecution writes the terminal state and status for an execution.
func (l *Layer) FinalizeExecution(ctx context.Context, state *core.ExecutionState, status string) error {
	state.UpdatedAt = time.Now().UTC()

	if !l.isDegraded(state.ExecutionID) {
		if err := l.store.UpdateExecution(ctx, state.ExecutionID, state, status); err != nil {
			return err
		}
	}

	l.refreshCache(ctx, state)
	return nil
}

// GetOrCreatePortfolio resolves a wallet address to a portfolio id, creating
// the portfolio on first sight.
func (l *Layer) GetOrCreatePortfolio(ctx context.Context, p core.Portfolio) (string, error) {
	return l.store.UpsertPortfolio(ctx, p)
}

// RecordDecision appends a decision to the audit trail. Failures are logged
// and swallowed.
func (l *Layer) RecordDecision(ctx context.Context, rec core.DecisionRecord) {
	if err := l.store.AppendDecision(ctx, rec); err != nil {
		l.logger.Warn("record decision failed", "execution_id", rec.ExecutionID, "agent", rec.AgentName, "error", err)
	}
}

// RecordReasoning appends a reasoning entry to the audit trail. Failures are
// logged and swallowed.
func (l *Layer) RecordReasoning(ctx context.Context, rec core.ReasoningEntry) {
	if err := l.store.AppendReasoning(ctx, rec); err != nil {
		l.logger.Warn("record reasoning failed", "execution_id", rec.ExecutionID, "agent", rec.AgentName, "error", err)
	}
}

// RecordRiskAssessment appends a risk assessment to the audit trail.
// Failures are logged and swallowed.
func (l *Layer) RecordRiskAssessment(ctx context.Context, rec core.RiskRecord) {
	if err := l.store.AppendRiskRecord(ctx, rec); err != nil {
		l.logger.Warn("record risk assessment failed", "execution_id", rec.ExecutionID, "protocol", rec.Protocol, "error", err)
	}
}

// RecordTransaction appends an executed transaction to the audit trail.
// Failures are logged and swallowed.
func (l *Layer) RecordTransaction(ctx context.Context, rec core.TransactionRecord) {
	if err := l.store.AppendTransaction(ctx, rec); err != nil {
		l.logger.Warn("record transaction failed", "execution_id", rec.ExecutionID, "tx_hash", rec.TxHash, "error", err)
	}
}

// UpdateBalance appends a balance observation for a portfolio. Failures are
// logged and swallowed.
func (l *Layer) UpdateBalance(ctx context.Context, rec core.BalanceRecord) {
	if err := l.store.AppendBalance(ctx, rec); err != nil {
		l.logger.Warn("update balance failed", "portfolio_id", rec.PortfolioID, "asset", rec.Asset, "error", err)
	}
}

func (l *Layer) refreshCache(ctx context.Context, state *core.ExecutionState) {
	if state == nil || state.ExecutionID == "" {
		return
	}
	if err := l.cache.SetState(ctx, state, l.cacheTTL); err != nil {
		l.logger.Warn("cache refresh failed", "execution_id", state.ExecutionID, "error", err)
	}
}

func (l *Layer) markDegraded(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.degraded[executionID] = struct{}{}
}

func (l *Layer) isDegraded(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.degraded[executionID]
	return ok
}
