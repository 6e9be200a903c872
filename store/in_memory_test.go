package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/defimesh/core"
)

func TestInMemoryStore_UpsertPortfolioIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	first, err := s.UpsertPortfolio(ctx, core.Portfolio{UserID: "u1", WalletAddress: "0xabc", ChainID: 1})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.UpsertPortfolio(ctx, core.Portfolio{UserID: "u1", WalletAddress: "0xabc", ChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	p, err := s.GetPortfolioByWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, first, p.ID)
}

func TestInMemoryStore_GetPortfolioByWallet_NotFound(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.GetPortfolioByWallet(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryStore_ExecutionLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	state := core.NewExecutionState("p1", "optimize", "0xabc", 1)
	id, err := s.InsertExecution(ctx, core.ExecutionRecord{PortfolioID: "p1", State: state, Status: core.StatusRunning})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, rec.Status)
	assert.Equal(t, id, rec.State.ExecutionID, "stored state should carry the assigned id")

	// Mutating the returned state must not touch the stored record.
	rec.State.AppendError("local only")
	again, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, again.State.ErrorMessages)

	state.ExecutionID = id
	state.IterationCount = 3
	state.UpdatedAt = time.Now().UTC().Add(time.Second)
	require.NoError(t, s.UpdateExecution(ctx, id, state, core.StatusCompleted))

	final, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, final.Status)
	assert.Equal(t, 3, final.State.IterationCount)
	assert.Equal(t, state.UpdatedAt, final.UpdatedAt)
}

func TestInMemoryStore_UpdateUnknownExecution(t *testing.T) {
	s := NewInMemoryStore()

	err := s.UpdateExecution(context.Background(), "nope", core.NewExecutionState("p", "", "0x", 1), core.StatusRunning)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.GetExecution(context.Background(), "nope")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestInMemoryStore_ListRecentExecutions(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	older := core.ExecutionRecord{PortfolioID: "p1", Status: core.StatusCompleted, CreatedAt: time.Now().Add(-time.Hour)}
	newer := core.ExecutionRecord{PortfolioID: "p1", Status: core.StatusRunning, CreatedAt: time.Now()}
	_, err := s.InsertExecution(ctx, older)
	require.NoError(t, err)
	newerID, err := s.InsertExecution(ctx, newer)
	require.NoError(t, err)

	recent, err := s.ListRecentExecutions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, newerID, recent[0].ExecutionID)
}

func TestInMemoryStore_AuditAppendsAreOrdered(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i, name := range []string{"Orchestrator", "DeFi_Agent", "Risk_Agent"} {
		require.NoError(t, s.AppendReasoning(ctx, core.ReasoningEntry{
			ExecutionID: "e1",
			AgentName:   name,
			StepNumber:  i,
			Reasoning:   name + " step",
		}))
	}
	require.NoError(t, s.AppendDecision(ctx, core.DecisionRecord{
		ExecutionID:  "e1",
		AgentName:    "Orchestrator",
		DecisionType: "routing",
		Reasoning:    "route to defi_agent",
	}))

	recent, err := s.ListRecentReasoning(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Risk_Agent", recent[0].AgentName, "newest first")
	assert.Equal(t, "DeFi_Agent", recent[1].AgentName)

	byExec := s.ReasoningByExecution("e1")
	require.Len(t, byExec, 3)
	assert.Equal(t, "Orchestrator", byExec[0].AgentName, "insertion order per execution")
	for _, rec := range byExec {
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())
	}

	decisions, err := s.ListRecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "routing", decisions[0].DecisionType)
}

func TestInMemoryStore_RiskTransactionBalanceAppends(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AppendRiskRecord(ctx, core.RiskRecord{
		ExecutionID: "e1",
		PortfolioID: "p1",
		Protocol:    "Compound",
		Score:       3.2,
		Factors:     map[string]float64{"tvl_stability": 0.8},
		Safe:        true,
	}))
	require.NoError(t, s.AppendTransaction(ctx, core.TransactionRecord{
		ExecutionID: "e1",
		PortfolioID: "p1",
		Protocol:    "Compound",
		Action:      "deposit",
		Asset:       "USDC",
		Amount:      10000,
		Status:      "success",
	}))
	require.NoError(t, s.AppendBalance(ctx, core.BalanceRecord{
		PortfolioID: "p1",
		Asset:       "USDC",
		Location:    "Compound",
		Amount:      10000,
	}))
}
