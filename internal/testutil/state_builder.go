package testutil

import (
	"github.com/hupe1980/defimesh/core"
)

// StateBuilder helps construct execution states with fluent chaining for
// tests. Example:
//
//	state := NewStateBuilder("portfolio-1").
//		UserInput("rebalance").
//		Position("aave", core.Position{Asset: "USDC", Amount: 10000, APY: 0.05}).
//		Build()
type StateBuilder struct {
	portfolioID string
	executionID string
	userInput   string
	wallet      string
	chainID     int64
	balances    map[string]float64
	positions   map[string]core.Position
	proposal    *core.Proposal
	risk        *core.RiskAssessment
	forecast    *core.Forecast
	validation  *core.ValidationResult
	reasoning   [][2]string
	nextAgent   string
	iterations  int
	errs        []string
}

// NewStateBuilder creates a new builder for an execution state owned by the
// given portfolio. Use chainable methods then call Build.
func NewStateBuilder(portfolioID string) *StateBuilder {
	return &StateBuilder{
		portfolioID: portfolioID,
		chainID:     1,
		balances:    map[string]float64{},
		positions:   map[string]core.Position{},
	}
}

// ExecutionID presets the execution id, bypassing store assignment (chainable).
func (b *StateBuilder) ExecutionID(id string) *StateBuilder {
	b.executionID = id
	return b
}

// UserInput sets the user request the run answers (chainable).
func (b *StateBuilder) UserInput(input string) *StateBuilder {
	b.userInput = input
	return b
}

// Wallet sets the wallet address and chain id (chainable).
func (b *StateBuilder) Wallet(address string, chainID int64) *StateBuilder {
	b.wallet = address
	b.chainID = chainID
	return b
}

// Balance sets or overwrites one asset balance (chainable).
func (b *StateBuilder) Balance(asset string, amount float64) *StateBuilder {
	b.balances[asset] = amount
	return b
}

// Position sets or overwrites one protocol position (chainable).
func (b *StateBuilder) Position(protocol string, pos core.Position) *StateBuilder {
	b.positions[protocol] = pos
	return b
}

// Proposal sets the strategy agent output (chainable).
func (b *StateBuilder) Proposal(p *core.Proposal) *StateBuilder {
	b.proposal = p
	return b
}

// Risk sets the risk agent output (chainable).
func (b *StateBuilder) Risk(r *core.RiskAssessment) *StateBuilder {
	b.risk = r
	return b
}

// Forecast sets the prediction agent output (chainable).
func (b *StateBuilder) Forecast(f *core.Forecast) *StateBuilder {
	b.forecast = f
	return b
}

// Validation sets the validation agent output (chainable).
func (b *StateBuilder) Validation(v *core.ValidationResult) *StateBuilder {
	b.validation = v
	return b
}

// Reasoning appends one reasoning entry attributed to the given agent (chainable).
func (b *StateBuilder) Reasoning(agentName, text string) *StateBuilder {
	b.reasoning = append(b.reasoning, [2]string{agentName, text})
	return b
}

// NextAgent overrides the initial routing target (chainable).
func (b *StateBuilder) NextAgent(route string) *StateBuilder {
	b.nextAgent = route
	return b
}

// Iterations presets the iteration counter (chainable).
func (b *StateBuilder) Iterations(n int) *StateBuilder {
	b.iterations = n
	return b
}

// Error appends one accumulated error message (chainable).
func (b *StateBuilder) Error(msg string) *StateBuilder {
	b.errs = append(b.errs, msg)
	return b
}

// Build returns a *core.ExecutionState with the configured fields applied.
func (b *StateBuilder) Build() *core.ExecutionState {
	state := core.NewExecutionState(b.portfolioID, b.userInput, b.wallet, b.chainID)
	state.ExecutionID = b.executionID

	for asset, amount := range b.balances {
		state.Balances[asset] = amount
	}
	for protocol, pos := range b.positions {
		state.Positions[protocol] = pos
	}

	state.Proposal = b.proposal
	state.RiskAssessment = b.risk
	state.Forecast = b.forecast
	state.ValidationResult = b.validation

	for _, entry := range b.reasoning {
		state.AppendReasoning(entry[0], entry[1])
	}
	for _, msg := range b.errs {
		state.AppendError(msg)
	}

	if b.nextAgent != "" {
		state.NextAgent = b.nextAgent
	}
	state.IterationCount = b.iterations

	return state
}

// SeededState returns the demo portfolio used across tests: USDC and ETH
// balances with a single USDC lending position on aave.
func SeededState() *core.ExecutionState {
	return NewStateBuilder("portfolio-1").
		UserInput("Find me the best yield opportunity for my USDC").
		Wallet("0xDemoWallet123", 1).
		Balance("USDC", 10000).
		Balance("ETH", 2).
		Position("aave", core.Position{Asset: "USDC", Amount: 10000, APY: 0.05}).
		Build()
}
