package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/oracle"
)

type failingOracle struct{ err error }

func (f failingOracle) Decide(ctx context.Context, snap oracle.Snapshot) (*oracle.Decision, error) {
	return nil, f.err
}

type capturingOracle struct {
	snap     oracle.Snapshot
	decision oracle.Decision
}

func (c *capturingOracle) Decide(ctx context.Context, snap oracle.Snapshot) (*oracle.Decision, error) {
	c.snap = snap
	return &c.decision, nil
}

func TestOrchestratorAgent_RoutesAndIncrements(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewOrchestratorAgent(coord, oracle.NewScripted(
		oracle.Decision{NextAgent: core.RouteStrategy, Reasoning: "need a proposal first"},
	))

	state := newTestState()
	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, core.RouteStrategy, got.NextAgent)
	assert.Equal(t, 1, got.IterationCount)
	require.NotNil(t, got.OrchestratorDecision)
	assert.Equal(t, core.RouteStrategy, got.OrchestratorDecision.NextAgent)
	require.Len(t, got.AgentReasoning, 1)
	assert.Equal(t, "OrchestratorAgent: need a proposal first", got.AgentReasoning[0])
}

func TestOrchestratorAgent_StepNumberPrecedesIncrement(t *testing.T) {
	coord, s := newTestCoordination(t)
	agent := NewOrchestratorAgent(coord, oracle.NewScripted(
		oracle.Decision{NextAgent: core.RouteStrategy, Reasoning: "first pass"},
	))

	state := newTestState()
	state.IterationCount = 2

	_, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	entries := s.ReasoningByExecution("exec-1")
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].StepNumber, "the step records the count before the increment")
	assert.Equal(t, 3, state.IterationCount)
}

func TestOrchestratorAgent_OracleFailureEndsRun(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewOrchestratorAgent(coord, failingOracle{err: errors.New("model timeout")})

	state := newTestState()
	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err, "an oracle failure must not crash the run")

	assert.Equal(t, core.RouteEnd, got.NextAgent)
	assert.Equal(t, 0, got.IterationCount)
	require.Len(t, got.ErrorMessages, 1)
	assert.Contains(t, got.ErrorMessages[0], "routing failed")
}

func TestOrchestratorAgent_UnknownRouteEndsRun(t *testing.T) {
	coord, _ := newTestCoordination(t)
	agent := NewOrchestratorAgent(coord, oracle.NewScripted(
		oracle.Decision{NextAgent: "solana_agent", Reasoning: "try something new"},
	))

	state := newTestState()
	got, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, core.RouteEnd, got.NextAgent)
	require.Len(t, got.ErrorMessages, 1)
	assert.Contains(t, got.ErrorMessages[0], "unknown agent: solana_agent")
}

func TestOrchestratorAgent_SnapshotIsBoundedCopy(t *testing.T) {
	coord, _ := newTestCoordination(t)
	capturing := &capturingOracle{decision: oracle.Decision{NextAgent: core.RouteEnd, Reasoning: "done"}}
	agent := NewOrchestratorAgent(coord, capturing, func(o *OrchestratorOptions) {
		o.ContextWindow = 3
	})

	state := newTestState()
	for i := 0; i < 8; i++ {
		state.AppendReasoning("StrategyAgent", "entry")
	}

	_, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Len(t, capturing.snap.RecentReasoning, 3)
	assert.Equal(t, state.UserInput, capturing.snap.UserInput)

	// Mutating the snapshot's maps must not leak into the state.
	capturing.snap.Balances["USDC"] = 0
	assert.InDelta(t, 10000, state.Balances["USDC"], 1e-9)
}
