package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/market"
)

type stubSource struct {
	opportunities []market.Opportunity
	err           error
}

func (s stubSource) Opportunities(ctx context.Context, asset string) ([]market.Opportunity, error) {
	return s.opportunities, s.err
}

func usdcOpportunities() []market.Opportunity {
	return []market.Opportunity{
		{Protocol: "aave", Asset: "USDC", APY: 0.05},
		{Protocol: "compound", Asset: "USDC", APY: 0.09},
	}
}

func TestStrategyAgent_ProposesMigration(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{opportunities: usdcOpportunities()})

	state := newTestState()
	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	p := got.Proposal
	require.NotNil(t, p)
	assert.Equal(t, core.ActionMigrate, p.Action)
	assert.Equal(t, "USDC", p.Asset)
	assert.Equal(t, "aave", p.Source)
	assert.Equal(t, "compound", p.Destination)
	assert.InDelta(t, 0.05, p.CurrentAPY, 1e-9)
	assert.InDelta(t, 0.09, p.TargetAPY, 1e-9)
	assert.InDelta(t, 0.04, p.APYGain, 1e-9)
	assert.InDelta(t, 10000, p.Amount, 1e-9)

	assert.Equal(t, core.RouteOrchestrator, got.NextAgent)
	require.Len(t, got.AgentReasoning, 1)
	assert.True(t, strings.HasPrefix(got.AgentReasoning[0], "StrategyAgent: "))
}

func TestStrategyAgent_HoldsWhenGainTooSmall(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{opportunities: usdcOpportunities()}, func(o *StrategyOptions) {
		o.MinAPYDiff = 0.05
	})

	state := newTestState()
	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	require.NotNil(t, got.Proposal)
	assert.Equal(t, core.ActionHold, got.Proposal.Action)
	assert.Empty(t, got.Proposal.Destination)
}

func TestStrategyAgent_HoldsWithoutBalance(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{opportunities: usdcOpportunities()})

	state := newTestState()
	delete(state.Balances, "USDC")

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, got.Proposal)
	assert.Equal(t, core.ActionHold, got.Proposal.Action)
	assert.Contains(t, got.Proposal.Reason, "no USDC balance")
}

func TestStrategyAgent_HoldsWithoutOpportunities(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{})

	state := newTestState()
	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, got.Proposal)
	assert.Equal(t, core.ActionHold, got.Proposal.Action)
}

func TestStrategyAgent_SourceErrorPropagates(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{err: errors.New("feed down")})

	_, err := agent.Execute(context.Background(), newTestState())
	assert.Error(t, err)
}

func TestStrategyAgent_ExecutesAfterSafeRisk(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{opportunities: usdcOpportunities()})

	state := newTestState()
	state.Proposal = &core.Proposal{
		Action:      core.ActionMigrate,
		Asset:       "USDC",
		Amount:      10000,
		Source:      "aave",
		Destination: "compound",
		CurrentAPY:  0.05,
		TargetAPY:   0.09,
		APYGain:     0.04,
	}
	state.RiskAssessment = &core.RiskAssessment{Protocol: "compound", Score: 4.1, Safe: true, Threshold: 7.0}

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, got.ExecutedTransactions, 1)
	tx := got.ExecutedTransactions[0]
	assert.True(t, strings.HasPrefix(tx.TxHash, "0xsim"))
	assert.Equal(t, "compound", tx.Protocol)
	assert.InDelta(t, 10000, tx.Amount, 1e-9)
	assert.Equal(t, "success", tx.Status)

	_, hasOld := got.Positions["aave"]
	assert.False(t, hasOld, "source position must be closed")
	moved, hasNew := got.Positions["compound"]
	require.True(t, hasNew)
	assert.InDelta(t, 0.09, moved.APY, 1e-9)
	assert.Equal(t, core.RouteOrchestrator, got.NextAgent)
}

func TestStrategyAgent_DoesNotExecuteUnsafeMigration(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewStrategyAgent(coord, stubSource{opportunities: usdcOpportunities()})

	state := newTestState()
	state.Proposal = &core.Proposal{Action: core.ActionMigrate, Asset: "USDC", Destination: "compound"}
	state.RiskAssessment = &core.RiskAssessment{Protocol: "compound", Score: 8.5, Safe: false}

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, got.ExecutedTransactions)
}

func TestPropose_FirstMaxWins(t *testing.T) {
	proposal := propose(
		map[string]float64{"USDC": 500},
		map[string]core.Position{},
		[]market.Opportunity{
			{Protocol: "first", Asset: "USDC", APY: 0.09},
			{Protocol: "second", Asset: "USDC", APY: 0.09},
		},
		0.02,
		"USDC",
	)
	assert.Equal(t, core.ActionMigrate, proposal.Action)
	assert.Equal(t, "first", proposal.Destination)
}

func TestPropose_CurrentAPYFromFirstPositionInKeyOrder(t *testing.T) {
	proposal := propose(
		map[string]float64{"USDC": 500},
		map[string]core.Position{
			"zeta":  {Asset: "USDC", Amount: 100, APY: 0.07},
			"alpha": {Asset: "USDC", Amount: 400, APY: 0.03},
		},
		[]market.Opportunity{{Protocol: "compound", Asset: "USDC", APY: 0.09}},
		0.02,
		"USDC",
	)
	assert.Equal(t, "alpha", proposal.Source)
	assert.InDelta(t, 0.03, proposal.CurrentAPY, 1e-9)
}
