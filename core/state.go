package core

import (
	"fmt"
	"time"
)

// Proposal actions emitted by the strategy agent.
const (
	ActionMigrate = "migrate"
	ActionHold    = "hold"
)

// Position describes one active protocol position held by the portfolio.
type Position struct {
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount"`
	APY    float64 `json:"apy"`
}

// RoutingDecision is the orchestrating agent's output: which agent runs next
// and why. It mirrors the structured reply of the decision oracle.
type RoutingDecision struct {
	NextAgent string `json:"next_agent"`
	Reasoning string `json:"reasoning"`
}

// Proposal is the strategy agent's output: either a migration of an asset
// between protocols or an explicit hold.
type Proposal struct {
	Action      string  `json:"action"`
	Asset       string  `json:"asset,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Source      string  `json:"source,omitempty"`
	Destination string  `json:"destination,omitempty"`
	CurrentAPY  float64 `json:"current_apy,omitempty"`
	TargetAPY   float64 `json:"target_apy,omitempty"`
	APYGain     float64 `json:"apy_gain,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// RiskAssessment is the risk agent's output for a proposed destination
// protocol. Safe is derived from Score measured against Threshold.
type RiskAssessment struct {
	Protocol  string             `json:"protocol,omitempty"`
	Score     float64            `json:"risk_score"`
	Safe      bool               `json:"safe"`
	Factors   map[string]float64 `json:"factors,omitempty"`
	Threshold float64            `json:"threshold,omitempty"`
}

// Forecast is the prediction agent's output: a coarse market outlook for an
// asset over a stated horizon.
type Forecast struct {
	Asset      string  `json:"asset"`
	Outlook    string  `json:"outlook"`
	Confidence float64 `json:"confidence"`
	Horizon    string  `json:"horizon,omitempty"`
}

// Action is one user-facing productivity item (a notification or reminder)
// composed by the productivity agent.
type Action struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationResult is the validation agent's output: the checks it ran and
// any issues found.
type ValidationResult struct {
	Passed bool     `json:"passed"`
	Checks []string `json:"checks,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// Transaction records one executed or pending portfolio movement.
type Transaction struct {
	TxHash   string  `json:"tx_hash"`
	Protocol string  `json:"protocol"`
	Action   string  `json:"action"`
	Asset    string  `json:"asset"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"`
}

// ExecutionState is the shared whiteboard one control-loop run mutates. It is
// uniquely identified by ExecutionID and always belongs to exactly one
// portfolio.
//
// Contract:
//   - The immutable context fields (ids, user input, wallet, chain,
//     CreatedAt) are set at creation and never mutated.
//   - Each per-agent output field is written by exactly one agent and stays
//     nil until that agent has run.
//   - AgentReasoning, the transaction slices and ErrorMessages are
//     append-only: no caller may delete or reorder prior entries.
//   - NextAgent always carries a member of the closed routing set or the
//     terminal sentinel RouteEnd.
//   - IterationCount increases by exactly 1 per successful orchestrator
//     routing pass and never decreases.
//
// The state is deliberately not self-locking: a single control loop owns one
// execution at a time (writes are strictly sequential per execution), and
// stores clone the value under their own locks when sharing it.
type ExecutionState struct {
	// Immutable context.
	PortfolioID   string `json:"portfolio_id"`
	ExecutionID   string `json:"execution_id"`
	UserInput     string `json:"user_input"`
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`

	// External-world snapshot, read by all agents.
	Balances  map[string]float64  `json:"balances"`
	Positions map[string]Position `json:"positions"`

	// Per-agent outputs, one owner each.
	OrchestratorDecision *RoutingDecision  `json:"orchestrator_decision,omitempty"`
	Proposal             *Proposal         `json:"defi_proposal,omitempty"`
	RiskAssessment       *RiskAssessment   `json:"risk_assessment,omitempty"`
	Forecast             *Forecast         `json:"prediction_forecast,omitempty"`
	ProductivityActions  []Action          `json:"productivity_actions,omitempty"`
	ValidationResult     *ValidationResult `json:"qa_results,omitempty"`

	// Execution history, append-only.
	ExecutedTransactions []Transaction `json:"executed_transactions"`
	PendingTransactions  []Transaction `json:"pending_transactions"`

	// Reasoning chain, one entry per agent invocation, append-only.
	AgentReasoning []string `json:"agent_reasoning"`

	// Control fields.
	NextAgent      string   `json:"next_agent"`
	IterationCount int      `json:"iteration_count"`
	ErrorMessages  []string `json:"error_messages"`

	// Timestamps. CreatedAt is fixed at creation; UpdatedAt is refreshed on
	// every successful write through the coordination layer.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecutionState creates a fresh state for one coordination run. The
// routing field starts at the orchestrating agent and the reasoning chain,
// history and error list start empty (non-nil, so appends and JSON round
// trips behave uniformly).
func NewExecutionState(portfolioID, userInput, walletAddress string, chainID int64) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		PortfolioID:          portfolioID,
		UserInput:            userInput,
		WalletAddress:        walletAddress,
		ChainID:              chainID,
		Balances:             map[string]float64{},
		Positions:            map[string]Position{},
		ExecutedTransactions: []Transaction{},
		PendingTransactions:  []Transaction{},
		AgentReasoning:       []string{},
		NextAgent:            RouteOrchestrator,
		ErrorMessages:        []string{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// AppendReasoning appends one reasoning entry to the in-memory chain,
// prefixed with the producing agent's name. Entries are never rewritten.
func (s *ExecutionState) AppendReasoning(agentName, text string) {
	s.AgentReasoning = append(s.AgentReasoning, fmt.Sprintf("%s: %s", agentName, text))
}

// RecentReasoning returns up to the last n reasoning entries in order. It is
// the bounded window handed to the decision oracle so prompts never grow with
// the full chain.
func (s *ExecutionState) RecentReasoning(n int) []string {
	if n <= 0 || len(s.AgentReasoning) == 0 {
		return nil
	}
	if len(s.AgentReasoning) <= n {
		out := make([]string, len(s.AgentReasoning))
		copy(out, s.AgentReasoning)
		return out
	}
	out := make([]string, n)
	copy(out, s.AgentReasoning[len(s.AgentReasoning)-n:])
	return out
}

// AppendError appends a message to the error list. Errors accumulate; the
// final reported state always carries them, even on abnormal termination.
func (s *ExecutionState) AppendError(msg string) {
	s.ErrorMessages = append(s.ErrorMessages, msg)
}

// AppendExecutedTransaction appends to the executed-transaction history.
func (s *ExecutionState) AppendExecutedTransaction(tx Transaction) {
	s.ExecutedTransactions = append(s.ExecutedTransactions, tx)
}

// AppendPendingTransaction appends to the pending-transaction history.
func (s *ExecutionState) AppendPendingTransaction(tx Transaction) {
	s.PendingTransactions = append(s.PendingTransactions, tx)
}

// Clone returns a deep copy of the state safe for independent mutation. Maps,
// slices and per-agent output pointers are copied; the clone shares nothing
// mutable with the original.
func (s *ExecutionState) Clone() *ExecutionState {
	clone := *s

	clone.Balances = make(map[string]float64, len(s.Balances))
	for k, v := range s.Balances {
		clone.Balances[k] = v
	}
	clone.Positions = make(map[string]Position, len(s.Positions))
	for k, v := range s.Positions {
		clone.Positions[k] = v
	}

	if s.OrchestratorDecision != nil {
		d := *s.OrchestratorDecision
		clone.OrchestratorDecision = &d
	}
	if s.Proposal != nil {
		p := *s.Proposal
		clone.Proposal = &p
	}
	if s.RiskAssessment != nil {
		r := *s.RiskAssessment
		r.Factors = make(map[string]float64, len(s.RiskAssessment.Factors))
		for k, v := range s.RiskAssessment.Factors {
			r.Factors[k] = v
		}
		clone.RiskAssessment = &r
	}
	if s.Forecast != nil {
		f := *s.Forecast
		clone.Forecast = &f
	}
	if s.ValidationResult != nil {
		v := *s.ValidationResult
		v.Checks = append([]string(nil), s.ValidationResult.Checks...)
		v.Issues = append([]string(nil), s.ValidationResult.Issues...)
		clone.ValidationResult = &v
	}

	clone.ProductivityActions = append([]Action(nil), s.ProductivityActions...)
	clone.ExecutedTransactions = append([]Transaction(nil), s.ExecutedTransactions...)
	clone.PendingTransactions = append([]Transaction(nil), s.PendingTransactions...)
	clone.AgentReasoning = append([]string(nil), s.AgentReasoning...)
	clone.ErrorMessages = append([]string(nil), s.ErrorMessages...)

	return &clone
}
