package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
	"github.com/hupe1980/defimesh/oracle"
)

// OrchestratorOptions configures the orchestrating agent.
type OrchestratorOptions struct {
	// ContextWindow is how many recent reasoning entries the oracle sees.
	ContextWindow int

	// MaxIterations is surfaced to the oracle so it can wind down long
	// runs. The hard bound itself is enforced by the engine.
	MaxIterations int

	// RiskThreshold is surfaced to the oracle as part of the routing rules.
	RiskThreshold float64

	Logger logging.Logger
}

// OrchestratorAgent decides which specialist runs next. It hands the oracle
// a bounded snapshot of the execution state, validates the returned route
// against the known set and advances the iteration count once per
// successful routing pass.
//
// Oracle failures and unknown routes never crash a run: the error is
// appended to the state and control is routed to END.
type OrchestratorAgent struct {
	Base
	oracle        oracle.Oracle
	contextWindow int
	maxIterations int
	riskThreshold float64
}

var _ core.Agent = (*OrchestratorAgent)(nil)

// NewOrchestratorAgent creates the orchestrating agent.
func NewOrchestratorAgent(coord *coordination.Layer, o oracle.Oracle, optFns ...func(o *OrchestratorOptions)) *OrchestratorAgent {
	opts := OrchestratorOptions{
		ContextWindow: 5,
		MaxIterations: 20,
		RiskThreshold: 7.0,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &OrchestratorAgent{
		Base:          NewBase("OrchestratorAgent", core.RouteOrchestrator, coord, opts.Logger),
		oracle:        o,
		contextWindow: opts.ContextWindow,
		maxIterations: opts.MaxIterations,
		riskThreshold: opts.RiskThreshold,
	}
}

// Execute implements core.Agent.
func (a *OrchestratorAgent) Execute(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	decision, err := a.oracle.Decide(ctx, a.snapshot(state))
	if err != nil {
		msg := fmt.Sprintf("routing failed: %v", err)
		state.AppendError(msg)
		state.OrchestratorDecision = &core.RoutingDecision{NextAgent: core.RouteEnd, Reasoning: msg}
		state.NextAgent = core.RouteEnd
		a.LogReasoning(ctx, state, "Routing failed, ending the run")
		return state, nil
	}

	next := decision.NextAgent
	if next != core.RouteEnd && !core.KnownRoute(next) {
		state.AppendError(fmt.Sprintf("unknown agent: %s", next))
		state.OrchestratorDecision = &core.RoutingDecision{NextAgent: core.RouteEnd, Reasoning: decision.Reasoning}
		state.NextAgent = core.RouteEnd
		a.LogReasoning(ctx, state, fmt.Sprintf("Oracle chose unknown agent %q, ending the run", next))
		return state, nil
	}

	state.OrchestratorDecision = &core.RoutingDecision{NextAgent: next, Reasoning: decision.Reasoning}
	a.LogReasoning(ctx, state, decision.Reasoning)
	a.RecordDecision(ctx, state, "routing", map[string]any{"next_agent": next}, decision.Reasoning)

	state.IterationCount++
	state.NextAgent = next
	return state, nil
}

func (a *OrchestratorAgent) snapshot(state *core.ExecutionState) oracle.Snapshot {
	balances := make(map[string]float64, len(state.Balances))
	for k, v := range state.Balances {
		balances[k] = v
	}
	positions := make(map[string]core.Position, len(state.Positions))
	for k, v := range state.Positions {
		positions[k] = v
	}

	return oracle.Snapshot{
		UserInput:            state.UserInput,
		WalletAddress:        state.WalletAddress,
		ChainID:              state.ChainID,
		Balances:             balances,
		Positions:            positions,
		Proposal:             state.Proposal,
		Risk:                 state.RiskAssessment,
		Forecast:             state.Forecast,
		Validation:           state.ValidationResult,
		ActionItems:          len(state.ProductivityActions),
		ExecutedTransactions: len(state.ExecutedTransactions),
		RecentReasoning:      state.RecentReasoning(a.contextWindow),
		IterationCount:       state.IterationCount,
		MaxIterations:        a.maxIterations,
		RiskThreshold:        a.riskThreshold,
	}
}
