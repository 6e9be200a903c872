package defimesh

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/dispatch"
	"github.com/hupe1980/defimesh/oracle"
	"github.com/hupe1980/defimesh/store"
)

func demoRequest() dispatch.Request {
	return dispatch.Request{
		UserInput:     "Find me the best yield opportunity for my USDC",
		WalletAddress: "0xDemoWallet123",
		ChainID:       1,
		Balances:      map[string]float64{"USDC": 10000, "ETH": 2},
		Positions: map[string]core.Position{
			"aave": {Asset: "USDC", Amount: 10000, APY: 0.05},
		},
	}
}

func TestMesh_StartExecution(t *testing.T) {
	s := store.NewInMemoryStore()
	mesh, err := New(func(o *Options) {
		o.Store = s
	})
	require.NoError(t, err)
	ctx := context.Background()

	final, err := mesh.StartExecution(ctx, demoRequest())
	require.NoError(t, err)

	require.NotNil(t, final.Proposal)
	assert.Equal(t, core.ActionMigrate, final.Proposal.Action)
	assert.Equal(t, "aave", final.Proposal.Source)
	assert.Equal(t, "compound", final.Proposal.Destination)
	assert.InDelta(t, 10000, final.Proposal.Amount, 1e-9)

	require.Len(t, final.ExecutedTransactions, 1)
	assert.True(t, strings.HasPrefix(final.ExecutedTransactions[0].TxHash, "0xsim"))

	require.NotNil(t, final.ValidationResult)
	assert.True(t, final.ValidationResult.Passed)

	assert.Equal(t, core.RouteEnd, final.NextAgent)
	assert.Equal(t, 7, final.IterationCount)
	assert.Empty(t, final.ErrorMessages)
	assert.NotEmpty(t, final.AgentReasoning)

	// The position moved to the destination protocol.
	assert.NotContains(t, final.Positions, "aave")
	assert.Contains(t, final.Positions, "compound")

	rec, err := s.GetExecution(ctx, final.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)

	p, err := s.GetPortfolioByWallet(ctx, "0xDemoWallet123")
	require.NoError(t, err)
	assert.Equal(t, final.PortfolioID, p.ID)
}

func TestMesh_EnqueueAndProcess(t *testing.T) {
	s := store.NewInMemoryStore()
	mesh, err := New(func(o *Options) {
		o.Store = s
	})
	require.NoError(t, err)
	ctx := context.Background()

	id, err := mesh.EnqueueExecution(ctx, demoRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, rec.Status, "queued executions are persisted before processing")

	require.NoError(t, mesh.Queue().Close())

	p := dispatch.NewProcessor(mesh, mesh.Queue(), func(o *dispatch.ProcessorOptions) {
		o.WorkerCount = 1
	})
	require.NoError(t, p.Start(ctx))

	rec, err = s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)
	require.NotNil(t, rec.State)
	assert.Equal(t, 7, rec.State.IterationCount)
}

func TestMesh_ProcessUnknownExecution(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)

	_, err = mesh.Process(context.Background(), "no-such-execution")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMesh_CancelInactive(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)

	assert.False(t, mesh.CancelExecution("no-such-execution"))
}

func TestMesh_PortfolioIsReused(t *testing.T) {
	s := store.NewInMemoryStore()
	mesh, err := New(func(o *Options) {
		o.Store = s
	})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := mesh.StartExecution(ctx, demoRequest())
	require.NoError(t, err)

	second, err := mesh.StartExecution(ctx, demoRequest())
	require.NoError(t, err)

	assert.Equal(t, first.PortfolioID, second.PortfolioID)
	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)
}

func TestMesh_OracleOverride(t *testing.T) {
	mesh, err := New(func(o *Options) {
		o.Oracle = oracle.NewScripted(
			oracle.Decision{NextAgent: core.RouteEnd, Reasoning: "nothing to do"},
		)
	})
	require.NoError(t, err)

	final, err := mesh.StartExecution(context.Background(), demoRequest())
	require.NoError(t, err)

	assert.Equal(t, core.RouteEnd, final.NextAgent)
	assert.Equal(t, 1, final.IterationCount)
	assert.Nil(t, final.Proposal)
	assert.Empty(t, final.ErrorMessages)
}

func TestMesh_TuningOptions(t *testing.T) {
	// A higher APY hurdle turns the demo migration into a hold.
	mesh, err := New(func(o *Options) {
		o.MinAPYDiff = 0.05
	})
	require.NoError(t, err)

	final, err := mesh.StartExecution(context.Background(), demoRequest())
	require.NoError(t, err)

	require.NotNil(t, final.Proposal)
	assert.Equal(t, core.ActionHold, final.Proposal.Action)
	assert.Empty(t, final.ExecutedTransactions)
}
