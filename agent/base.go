package agent

import (
	"context"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
)

// Base bundles the identity and audit plumbing shared by all agents. Embed
// it in concrete agent implementations and supply an Execute method to
// satisfy the core.Agent interface.
type Base struct {
	name    string
	routeID string
	coord   *coordination.Layer
	logger  logging.Logger
}

// NewBase constructs the shared agent base.
func NewBase(name, routeID string, coord *coordination.Layer, logger logging.Logger) Base {
	if logger == nil {
		logger = logging.NewDefaultSlogLogger()
	}
	return Base{
		name:    name,
		routeID: routeID,
		coord:   coord,
		logger:  logging.With(logger, "agent", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *Base) Name() string { return b.name }

// RouteID returns the routing identifier the orchestrator uses to address
// this agent.
func (b *Base) RouteID() string { return b.routeID }

// Coordination returns the coordination layer this agent reports through.
func (b *Base) Coordination() *coordination.Layer { return b.coord }

// Logger returns the agent-scoped logger.
func (b *Base) Logger() logging.Logger { return b.logger }

// LogReasoning appends one reasoning entry to the state's chain and mirrors
// it into the audit trail. The step number is the iteration count at the
// time of logging.
func (b *Base) LogReasoning(ctx context.Context, state *core.ExecutionState, text string) {
	state.AppendReasoning(b.name, text)
	b.coord.RecordReasoning(ctx, core.ReasoningEntry{
		ExecutionID: state.ExecutionID,
		AgentName:   b.name,
		StepNumber:  state.IterationCount,
		Reasoning:   text,
	})
	b.logger.Debug("reasoning", "execution_id", state.ExecutionID, "text", text)
}

// RecordDecision writes a decision record to the audit trail.
func (b *Base) RecordDecision(ctx context.Context, state *core.ExecutionState, decisionType string, data map[string]any, reasoning string) {
	b.coord.RecordDecision(ctx, core.DecisionRecord{
		ExecutionID:  state.ExecutionID,
		PortfolioID:  state.PortfolioID,
		AgentName:    b.name,
		DecisionType: decisionType,
		DecisionData: data,
		Reasoning:    reasoning,
	})
}
