package core

import (
	"context"
	"time"
)

// Portfolio is the long-lived wallet-scoped entity that owns executions. It
// outlives any single run and is created lazily, keyed by wallet address.
type Portfolio struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	ChainID       int64     `json:"chain_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExecutionRecord is the persisted envelope for one execution: the full
// state blob plus its lifecycle status and timestamps.
type ExecutionRecord struct {
	ExecutionID string          `json:"execution_id"`
	PortfolioID string          `json:"portfolio_id"`
	State       *ExecutionState `json:"state_data"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store is the durable system of record for portfolios, executions and the
// append-only audit collections. It is the single source of truth; the Cache
// in front of it is an optimization, never an authority.
//
// Contract:
//   - UpsertPortfolio is idempotent per wallet address: repeat calls return
//     the existing portfolio id and never create a duplicate.
//   - UpdateExecution is last-write-wins per execution id; the coordination
//     layer issues writes strictly in order for a single execution.
//   - The Append* methods insert immutable audit facts that are never
//     updated afterwards.
//   - Lookups for unknown keys return an error wrapping ErrNotFound.
type Store interface {
	// UpsertPortfolio creates the portfolio if no record exists for its
	// wallet address and returns the (new or existing) portfolio id.
	UpsertPortfolio(ctx context.Context, p Portfolio) (string, error)

	// GetPortfolioByWallet returns the portfolio keyed by wallet address.
	GetPortfolioByWallet(ctx context.Context, walletAddress string) (*Portfolio, error)

	// InsertExecution creates a new execution record and returns the
	// assigned execution id.
	InsertExecution(ctx context.Context, rec ExecutionRecord) (string, error)

	// GetExecution returns the stored record for an execution id.
	GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error)

	// UpdateExecution replaces the state blob and status for an execution.
	UpdateExecution(ctx context.Context, executionID string, state *ExecutionState, status string) error

	// ListRecentExecutions returns up to limit records, newest first.
	ListRecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error)

	// AppendDecision inserts an immutable decision record.
	AppendDecision(ctx context.Context, rec DecisionRecord) error

	// AppendReasoning inserts an immutable reasoning entry.
	AppendReasoning(ctx context.Context, rec ReasoningEntry) error

	// AppendRiskRecord inserts an immutable risk-assessment record.
	AppendRiskRecord(ctx context.Context, rec RiskRecord) error

	// AppendTransaction inserts an immutable executed-transaction record.
	AppendTransaction(ctx context.Context, rec TransactionRecord) error

	// AppendBalance inserts a balance observation.
	AppendBalance(ctx context.Context, rec BalanceRecord) error

	// ListRecentDecisions returns up to limit decision records, newest first.
	ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)

	// ListRecentReasoning returns up to limit reasoning entries, newest first.
	ListRecentReasoning(ctx context.Context, limit int) ([]ReasoningEntry, error)
}

// Cache is the optional fast-path read/write layer in front of the Store.
// Entries carry a bounded time-to-live; a missing or failing cache must
// degrade gracefully to Store-only operation.
type Cache interface {
	// GetState returns the cached state for an execution id, or an error
	// wrapping ErrNotFound on a miss or expired entry.
	GetState(ctx context.Context, executionID string) (*ExecutionState, error)

	// SetState stores the state under its execution id with the given TTL.
	SetState(ctx context.Context, state *ExecutionState, ttl time.Duration) error

	// DeleteState evicts the entry for an execution id. Unknown ids are not
	// an error.
	DeleteState(ctx context.Context, executionID string) error
}
