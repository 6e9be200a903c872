package core

import "time"

// DecisionRecord is an immutable audit fact capturing one high-level agent
// choice (a routing decision, a proposal, an assessment verdict). Records
// are keyed by execution and never updated after insertion.
type DecisionRecord struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	PortfolioID  string         `json:"portfolio_id"`
	AgentName    string         `json:"agent_name"`
	DecisionType string         `json:"decision_type"`
	DecisionData map[string]any `json:"decision_data,omitempty"`
	Reasoning    string         `json:"reasoning"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ReasoningEntry is an immutable audit fact capturing one reasoning step.
// StepNumber is the execution's iteration count at the time of logging.
type ReasoningEntry struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	AgentName   string    `json:"agent_name"`
	StepNumber  int       `json:"step_number"`
	Reasoning   string    `json:"reasoning_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// RiskRecord is an immutable audit fact capturing one risk-agent scoring of
// a destination protocol.
type RiskRecord struct {
	ID          string             `json:"id"`
	ExecutionID string             `json:"execution_id"`
	PortfolioID string             `json:"portfolio_id"`
	Protocol    string             `json:"protocol"`
	Score       float64            `json:"risk_score"`
	Factors     map[string]float64 `json:"risk_factors,omitempty"`
	Safe        bool               `json:"safe"`
	CreatedAt   time.Time          `json:"created_at"`
}

// TransactionRecord is an immutable audit fact for one executed transaction.
type TransactionRecord struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	PortfolioID string    `json:"portfolio_id"`
	TxHash      string    `json:"tx_hash"`
	Protocol    string    `json:"protocol"`
	Action      string    `json:"action"`
	Asset       string    `json:"asset"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// BalanceRecord is one observed balance for a portfolio asset at a location
// (a protocol name or "wallet").
type BalanceRecord struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Asset       string    `json:"asset"`
	Location    string    `json:"location"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}
