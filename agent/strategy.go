package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
	"github.com/hupe1980/defimesh/market"
)

// StrategyOptions configures the strategy agent.
type StrategyOptions struct {
	// MinAPYDiff is the minimum APY improvement that justifies a
	// migration. Differences at or below it produce a hold.
	MinAPYDiff float64

	// DefaultAsset is the asset analyzed when the user request names none.
	DefaultAsset string

	Logger logging.Logger
}

// StrategyAgent analyzes the portfolio against current yield opportunities
// and proposes either a migration or a hold. On a later visit, once a safe
// risk assessment exists for a proposed migration, it executes the trade.
type StrategyAgent struct {
	Base
	source       market.OpportunitySource
	minAPYDiff   float64
	defaultAsset string
}

var _ core.Agent = (*StrategyAgent)(nil)

// NewStrategyAgent creates the strategy agent.
func NewStrategyAgent(coord *coordination.Layer, source market.OpportunitySource, optFns ...func(o *StrategyOptions)) *StrategyAgent {
	opts := StrategyOptions{
		MinAPYDiff:   0.02,
		DefaultAsset: "USDC",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &StrategyAgent{
		Base:         NewBase("StrategyAgent", core.RouteStrategy, coord, opts.Logger),
		source:       source,
		minAPYDiff:   opts.MinAPYDiff,
		defaultAsset: opts.DefaultAsset,
	}
}

// Execute implements core.Agent.
func (a *StrategyAgent) Execute(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	if p := state.Proposal; p != nil && p.Action == core.ActionMigrate &&
		state.RiskAssessment != nil && state.RiskAssessment.Safe &&
		len(state.ExecutedTransactions) == 0 {
		return a.executeTrade(ctx, state)
	}
	return a.analyze(ctx, state)
}

func (a *StrategyAgent) analyze(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	opportunities, err := a.source.Opportunities(ctx, a.defaultAsset)
	if err != nil {
		return nil, fmt.Errorf("fetch opportunities: %w", err)
	}

	proposal := propose(state.Balances, state.Positions, opportunities, a.minAPYDiff, a.defaultAsset)
	state.Proposal = &proposal

	var text string
	if proposal.Action == core.ActionMigrate {
		text = fmt.Sprintf("Proposing migration of %.2f %s from %s to %s for a %.2f%% APY gain",
			proposal.Amount, proposal.Asset, proposal.Source, proposal.Destination, proposal.APYGain*100)
	} else {
		text = fmt.Sprintf("Holding the current position: %s", proposal.Reason)
	}
	a.LogReasoning(ctx, state, text)
	a.RecordDecision(ctx, state, "strategy_proposal", map[string]any{
		"action":      proposal.Action,
		"asset":       proposal.Asset,
		"source":      proposal.Source,
		"destination": proposal.Destination,
		"apy_gain":    proposal.APYGain,
	}, proposal.Reason)

	state.NextAgent = core.RouteOrchestrator
	return state, nil
}

func (a *StrategyAgent) executeTrade(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	p := state.Proposal

	tx := core.Transaction{
		TxHash:   simulatedTxHash(),
		Protocol: p.Destination,
		Action:   p.Action,
		Asset:    p.Asset,
		Amount:   p.Amount,
		Status:   "success",
	}
	state.AppendExecutedTransaction(tx)

	delete(state.Positions, p.Source)
	state.Positions[p.Destination] = core.Position{Asset: p.Asset, Amount: p.Amount, APY: p.TargetAPY}

	a.Coordination().RecordTransaction(ctx, core.TransactionRecord{
		ExecutionID: state.ExecutionID,
		PortfolioID: state.PortfolioID,
		TxHash:      tx.TxHash,
		Protocol:    tx.Protocol,
		Action:      tx.Action,
		Asset:       tx.Asset,
		Amount:      tx.Amount,
		Status:      tx.Status,
	})
	a.Coordination().UpdateBalance(ctx, core.BalanceRecord{
		PortfolioID: state.PortfolioID,
		Asset:       p.Asset,
		Location:    p.Destination,
		Amount:      p.Amount,
	})

	text := fmt.Sprintf("Executed migration of %.2f %s from %s to %s (tx %s)",
		p.Amount, p.Asset, p.Source, p.Destination, tx.TxHash)
	a.LogReasoning(ctx, state, text)
	a.RecordDecision(ctx, state, "trade_execution", map[string]any{
		"tx_hash":     tx.TxHash,
		"destination": p.Destination,
		"amount":      p.Amount,
	}, text)

	state.NextAgent = core.RouteOrchestrator
	return state, nil
}

// propose derives a proposal from the portfolio and the available
// opportunities. The current APY comes from the first position in sorted key
// order; the best opportunity is the first one with the highest APY. The
// result is deterministic for identical inputs.
func propose(balances map[string]float64, positions map[string]core.Position, opportunities []market.Opportunity, minAPYDiff float64, asset string) core.Proposal {
	amount := balances[asset]
	if amount <= 0 {
		return core.Proposal{
			Action: core.ActionHold,
			Asset:  asset,
			Reason: fmt.Sprintf("no %s balance to deploy", asset),
		}
	}

	var source string
	var currentAPY float64
	if len(positions) > 0 {
		keys := make([]string, 0, len(positions))
		for k := range positions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		source = keys[0]
		currentAPY = positions[source].APY
	}

	var best *market.Opportunity
	for i := range opportunities {
		if best == nil || opportunities[i].APY > best.APY {
			best = &opportunities[i]
		}
	}
	if best == nil {
		return core.Proposal{
			Action:     core.ActionHold,
			Asset:      asset,
			CurrentAPY: currentAPY,
			Reason:     fmt.Sprintf("no yield opportunities available for %s", asset),
		}
	}

	gain := best.APY - currentAPY
	if gain <= minAPYDiff {
		return core.Proposal{
			Action:     core.ActionHold,
			Asset:      asset,
			CurrentAPY: currentAPY,
			TargetAPY:  best.APY,
			Reason: fmt.Sprintf("best available APY %.2f%% does not beat the current %.2f%% by more than %.2f%%",
				best.APY*100, currentAPY*100, minAPYDiff*100),
		}
	}

	return core.Proposal{
		Action:      core.ActionMigrate,
		Asset:       asset,
		Amount:      amount,
		Source:      source,
		Destination: best.Protocol,
		CurrentAPY:  currentAPY,
		TargetAPY:   best.APY,
		APYGain:     gain,
		Reason: fmt.Sprintf("%s offers %.2f%% APY, %.2f%% above the current %.2f%%",
			best.Protocol, best.APY*100, gain*100, currentAPY*100),
	}
}

func simulatedTxHash() string {
	return "0xsim" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
