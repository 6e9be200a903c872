package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
	"github.com/hupe1980/defimesh/market"
)

// RiskOptions configures the risk agent.
type RiskOptions struct {
	// Threshold is the score at or above which a protocol is unsafe,
	// on a 0 to 10 scale.
	Threshold float64

	Logger logging.Logger
}

// RiskAgent assesses the destination protocol of a proposed migration. When
// no trade is pending (no proposal, or a hold) it marks the state safe with
// a zero score without consulting the scorer.
type RiskAgent struct {
	Base
	scorer    market.RiskScorer
	threshold float64
}

var _ core.Agent = (*RiskAgent)(nil)

// NewRiskAgent creates the risk agent.
func NewRiskAgent(coord *coordination.Layer, scorer market.RiskScorer, optFns ...func(o *RiskOptions)) *RiskAgent {
	opts := RiskOptions{
		Threshold: 7.0,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RiskAgent{
		Base:      NewBase("RiskAgent", core.RouteRisk, coord, opts.Logger),
		scorer:    scorer,
		threshold: opts.Threshold,
	}
}

// Execute implements core.Agent.
func (a *RiskAgent) Execute(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	p := state.Proposal
	if p == nil || p.Action != core.ActionMigrate || p.Destination == "" {
		state.RiskAssessment = &core.RiskAssessment{
			Score:     0,
			Safe:      true,
			Factors:   map[string]float64{},
			Threshold: a.threshold,
		}
		a.LogReasoning(ctx, state, "No pending trade to assess, marking the state safe")
		state.NextAgent = core.RouteOrchestrator
		return state, nil
	}

	score, factors, err := a.scorer.ScoreProtocol(ctx, p.Destination)
	if err != nil {
		return nil, fmt.Errorf("score protocol %s: %w", p.Destination, err)
	}

	safe := score < a.threshold
	state.RiskAssessment = &core.RiskAssessment{
		Protocol:  p.Destination,
		Score:     score,
		Safe:      safe,
		Factors:   factors,
		Threshold: a.threshold,
	}

	verdict := "the migration may proceed"
	if !safe {
		verdict = "blocking execution"
	}
	text := fmt.Sprintf("%s scores %.1f against a threshold of %.1f, %s", p.Destination, score, a.threshold, verdict)
	a.LogReasoning(ctx, state, text)
	a.RecordDecision(ctx, state, "risk_assessment", map[string]any{
		"protocol":   p.Destination,
		"risk_score": score,
		"safe":       safe,
	}, text)
	a.Coordination().RecordRiskAssessment(ctx, core.RiskRecord{
		ExecutionID: state.ExecutionID,
		PortfolioID: state.PortfolioID,
		Protocol:    p.Destination,
		Score:       score,
		Factors:     factors,
		Safe:        safe,
	})

	state.NextAgent = core.RouteOrchestrator
	return state, nil
}
