package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/defimesh/core"
)

type countingScorer struct {
	calls   int
	score   float64
	factors map[string]float64
	err     error
}

func (s *countingScorer) ScoreProtocol(ctx context.Context, protocol string) (float64, map[string]float64, error) {
	s.calls++
	return s.score, s.factors, s.err
}

func TestRiskAgent_AssessesMigration(t *testing.T) {
	coord, _ := newTestCoordination(t)
	scorer := &countingScorer{score: 4.1, factors: map[string]float64{"audit_coverage": 0.85}}
	agent := NewRiskAgent(coord, scorer)

	state := newTestState()
	state.Proposal = &core.Proposal{Action: core.ActionMigrate, Asset: "USDC", Destination: "compound"}

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, 1, scorer.calls)

	r := got.RiskAssessment
	require.NotNil(t, r)
	assert.Equal(t, "compound", r.Protocol)
	assert.InDelta(t, 4.1, r.Score, 1e-9)
	assert.True(t, r.Safe)
	assert.InDelta(t, 7.0, r.Threshold, 1e-9)
	assert.Equal(t, core.RouteOrchestrator, got.NextAgent)
}

func TestRiskAgent_UnsafeAboveThreshold(t *testing.T) {
	coord, _ := newTestCoordination(t)
	scorer := &countingScorer{score: 7.0}
	agent := NewRiskAgent(coord, scorer)

	state := newTestState()
	state.Proposal = &core.Proposal{Action: core.ActionMigrate, Destination: "yoloswap"}

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.False(t, got.RiskAssessment.Safe, "a score equal to the threshold is unsafe")
}

func TestRiskAgent_ShortCircuitOnHold(t *testing.T) {
	coord, _ := newTestCoordination(t)
	scorer := &countingScorer{score: 4.1}
	agent := NewRiskAgent(coord, scorer)

	state := newTestState()
	state.Proposal = &core.Proposal{Action: core.ActionHold, Asset: "USDC"}

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 0, scorer.calls, "the scorer must not run for a hold")
	r := got.RiskAssessment
	require.NotNil(t, r)
	assert.True(t, r.Safe)
	assert.Zero(t, r.Score)
	assert.Len(t, got.AgentReasoning, 1, "the short circuit still logs its reasoning")
}

func TestRiskAgent_ShortCircuitWithoutProposal(t *testing.T) {
	coord, _ := newTestCoordination(t)
	scorer := &countingScorer{}
	agent := NewRiskAgent(coord, scorer)

	got, err := agent.Execute(context.Background(), newTestState())
	require.NoError(t, err)
	assert.Equal(t, 0, scorer.calls)
	require.NotNil(t, got.RiskAssessment)
	assert.True(t, got.RiskAssessment.Safe)
}

func TestRiskAgent_ScorerErrorPropagates(t *testing.T) {
	coord, _ := newTestCoordination(t)
	scorer := &countingScorer{err: errors.New("scorer offline")}
	agent := NewRiskAgent(coord, scorer)

	state := newTestState()
	state.Proposal = &core.Proposal{Action: core.ActionMigrate, Destination: "compound"}

	_, err := agent.Execute(context.Background(), state)
	assert.Error(t, err)
}

func TestRiskAgent_CustomThreshold(t *testing.T) {
	coord, _ := newTestCoordination(t)
	scorer := &countingScorer{score: 4.1}
	agent := NewRiskAgent(coord, scorer, func(o *RiskOptions) {
		o.Threshold = 4.0
	})

	state := newTestState()
	state.Proposal = &core.Proposal{Action: core.ActionMigrate, Destination: "compound"}

	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.False(t, got.RiskAssessment.Safe)
}
