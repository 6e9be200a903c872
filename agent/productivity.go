package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
)

// ProductivityOptions configures the productivity agent.
type ProductivityOptions struct {
	Logger logging.Logger
}

// ProductivityAgent turns the run's outcome into user-facing follow-ups: a
// review reminder and an APY alert after an executed migration, or a
// re-evaluation reminder after a hold.
type ProductivityAgent struct {
	Base
}

var _ core.Agent = (*ProductivityAgent)(nil)

// NewProductivityAgent creates the productivity agent.
func NewProductivityAgent(coord *coordination.Layer, optFns ...func(o *ProductivityOptions)) *ProductivityAgent {
	opts := ProductivityOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ProductivityAgent{
		Base: NewBase("ProductivityAgent", core.RouteProductivity, coord, opts.Logger),
	}
}

// Execute implements core.Agent.
func (a *ProductivityAgent) Execute(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	now := time.Now().UTC()
	var items []core.Action

	if n := len(state.ExecutedTransactions); n > 0 {
		last := state.ExecutedTransactions[n-1]
		items = append(items, core.Action{
			Kind:      "review",
			Message:   fmt.Sprintf("Review the %s position on %s after one week", last.Asset, last.Protocol),
			CreatedAt: now,
		})
		if p := state.Proposal; p != nil && p.CurrentAPY > 0 {
			items = append(items, core.Action{
				Kind:      "alert",
				Message:   fmt.Sprintf("Alert if %s APY on %s drops below %.2f%%", last.Asset, last.Protocol, p.CurrentAPY*100),
				CreatedAt: now,
			})
		}
	} else {
		items = append(items, core.Action{
			Kind:      "reminder",
			Message:   "Re-evaluate yield opportunities at the next cycle",
			CreatedAt: now,
		})
	}

	state.ProductivityActions = append(state.ProductivityActions, items...)

	text := fmt.Sprintf("Recorded %d follow-up actions", len(items))
	a.LogReasoning(ctx, state, text)
	a.RecordDecision(ctx, state, "action_items", map[string]any{"count": len(items)}, text)

	state.NextAgent = core.RouteOrchestrator
	return state, nil
}
