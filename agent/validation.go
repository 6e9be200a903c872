package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
)

// ValidationOptions configures the validation agent.
type ValidationOptions struct {
	Logger logging.Logger
}

// ValidationAgent cross-checks the run's outcome for internal consistency:
// a proposal exists, migrations were risk-assessed before execution, no
// errors accumulated and balances stayed non-negative.
type ValidationAgent struct {
	Base
}

var _ core.Agent = (*ValidationAgent)(nil)

// NewValidationAgent creates the validation agent.
func NewValidationAgent(coord *coordination.Layer, optFns ...func(o *ValidationOptions)) *ValidationAgent {
	opts := ValidationOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ValidationAgent{
		Base: NewBase("QAAgent", core.RouteValidation, coord, opts.Logger),
	}
}

// Execute implements core.Agent.
func (a *ValidationAgent) Execute(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	var checks, issues []string
	check := func(name string, ok bool, issue string) {
		if ok {
			checks = append(checks, name)
			return
		}
		issues = append(issues, issue)
	}

	check("proposal_present", state.Proposal != nil, "no strategy proposal was produced")

	if p := state.Proposal; p != nil && p.Action == core.ActionMigrate {
		check("risk_assessed", state.RiskAssessment != nil, "a migration was proposed without a risk assessment")
	}

	if len(state.ExecutedTransactions) > 0 {
		cleared := state.RiskAssessment != nil && state.RiskAssessment.Safe
		check("risk_respected", cleared, "a transaction was executed without a safe risk assessment")
	}

	check("no_errors", len(state.ErrorMessages) == 0,
		fmt.Sprintf("%d errors were recorded during the run", len(state.ErrorMessages)))

	nonNegative := true
	for _, amount := range state.Balances {
		if amount < 0 {
			nonNegative = false
			break
		}
	}
	check("balances_non_negative", nonNegative, "a balance went negative")

	passed := len(issues) == 0
	state.ValidationResult = &core.ValidationResult{
		Passed: passed,
		Checks: checks,
		Issues: issues,
	}

	var text string
	if passed {
		text = fmt.Sprintf("All %d consistency checks passed", len(checks))
	} else {
		text = fmt.Sprintf("%d consistency checks failed: %s", len(issues), strings.Join(issues, "; "))
	}
	a.LogReasoning(ctx, state, text)
	a.RecordDecision(ctx, state, "validation", map[string]any{
		"passed": passed,
		"issues": len(issues),
	}, text)

	state.NextAgent = core.RouteOrchestrator
	return state, nil
}
